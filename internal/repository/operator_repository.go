package repository

import (
	"errors"
	"time"

	"github.com/palletdock/internal/models"

	"gorm.io/gorm"
)

// OperatorRepository 操作员数据访问接口
type OperatorRepository interface {
	GetByUsername(username string) (*models.Operator, error)
	GetByID(id uint) (*models.Operator, error)
	List() ([]models.Operator, error)
	Count() (int64, error)
	Create(operator *models.Operator) error
	Update(operator *models.Operator) error
	TouchLastLogin(id uint, at time.Time) error
}

// GormOperatorRepository GORM 实现
type GormOperatorRepository struct {
	db *gorm.DB
}

// NewOperatorRepository 创建操作员仓库
func NewOperatorRepository(db *gorm.DB) *GormOperatorRepository {
	return &GormOperatorRepository{db: db}
}

// GetByUsername 根据用户名获取操作员
func (r *GormOperatorRepository) GetByUsername(username string) (*models.Operator, error) {
	var operator models.Operator
	if err := r.db.Where("username = ?", username).First(&operator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &operator, nil
}

// GetByID 根据 ID 获取操作员
func (r *GormOperatorRepository) GetByID(id uint) (*models.Operator, error) {
	var operator models.Operator
	if err := r.db.First(&operator, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &operator, nil
}

// List 获取操作员列表
func (r *GormOperatorRepository) List() ([]models.Operator, error) {
	operators := make([]models.Operator, 0)
	err := r.db.
		Select("id", "username", "display_name", "is_super", "last_login_at", "created_at").
		Order("id ASC").
		Find(&operators).Error
	if err != nil {
		return nil, err
	}
	return operators, nil
}

// Count 统计操作员数量
func (r *GormOperatorRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.Operator{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create 创建操作员
func (r *GormOperatorRepository) Create(operator *models.Operator) error {
	return r.db.Create(operator).Error
}

// Update 更新操作员
func (r *GormOperatorRepository) Update(operator *models.Operator) error {
	return r.db.Save(operator).Error
}

// TouchLastLogin 记录最后登录时间
func (r *GormOperatorRepository) TouchLastLogin(id uint, at time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Operator{}).Where("id = ?", id).Update("last_login_at", at).Error
}
