package repository

import (
	"errors"
	"strings"

	"github.com/palletdock/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemRepository 机器数据访问接口
type SystemRepository interface {
	WithTx(tx *gorm.DB) *GormSystemRepository
	GetByServiceTag(serviceTag string) (*models.System, error)
	GetByServiceTagForUpdate(serviceTag string) (*models.System, error)
	ListByServiceTags(serviceTags []string) ([]models.System, error)
	List(filter SystemListFilter) ([]models.System, int64, error)
	Create(system *models.System) error
	Update(system *models.System) error
	UpdateDOA(id uint, doaNumber *string) error
}

// GormSystemRepository GORM 实现
type GormSystemRepository struct {
	db *gorm.DB
}

// NewSystemRepository 创建机器仓库
func NewSystemRepository(db *gorm.DB) *GormSystemRepository {
	return &GormSystemRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSystemRepository) WithTx(tx *gorm.DB) *GormSystemRepository {
	if tx == nil {
		return r
	}
	return &GormSystemRepository{db: tx}
}

// GetByServiceTag 根据服务标签获取机器
func (r *GormSystemRepository) GetByServiceTag(serviceTag string) (*models.System, error) {
	var system models.System
	if err := r.db.Where("service_tag = ?", serviceTag).First(&system).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &system, nil
}

// GetByServiceTagForUpdate 加行锁获取机器
func (r *GormSystemRepository) GetByServiceTagForUpdate(serviceTag string) (*models.System, error) {
	var system models.System
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("service_tag = ?", serviceTag).
		First(&system).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &system, nil
}

// ListByServiceTags 批量获取机器
func (r *GormSystemRepository) ListByServiceTags(serviceTags []string) ([]models.System, error) {
	systems := make([]models.System, 0, len(serviceTags))
	if len(serviceTags) == 0 {
		return systems, nil
	}
	if err := r.db.Where("service_tag IN ?", serviceTags).Find(&systems).Error; err != nil {
		return nil, err
	}
	return systems, nil
}

// List 机器列表
func (r *GormSystemRepository) List(filter SystemListFilter) ([]models.System, int64, error) {
	query := r.db.Model(&models.System{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"service_tag", "ppid", "dpn"})
		query = query.Where("("+condition+")", repeatLikeArgs("%"+search+"%", argCount)...)
	}
	if filter.MissingDOA {
		query = query.Where("doa_number IS NULL OR doa_number = ''")
	}
	if code := strings.TrimSpace(filter.FactoryCode); code != "" {
		query = query.Where("factory_code = ?", code)
	}

	query, total, err := countAndPaginate(query, filter.Page, filter.PageSize)
	if err != nil {
		return nil, 0, err
	}

	var systems []models.System
	if err := query.Order("service_tag ASC").Find(&systems).Error; err != nil {
		return nil, 0, err
	}
	return systems, total, nil
}

// Create 创建机器
func (r *GormSystemRepository) Create(system *models.System) error {
	return r.db.Create(system).Error
}

// Update 更新机器
func (r *GormSystemRepository) Update(system *models.System) error {
	return r.db.Save(system).Error
}

// UpdateDOA 更新 DOA 编号，nil 表示清除
func (r *GormSystemRepository) UpdateDOA(id uint, doaNumber *string) error {
	return r.db.Model(&models.System{}).Where("id = ?", id).Update("doa_number", doaNumber).Error
}
