package repository

import (
	"strings"

	"github.com/palletdock/internal/models"

	"gorm.io/gorm"
)

// PalletAuditLogRepository 托盘审计日志数据访问接口
type PalletAuditLogRepository interface {
	WithTx(tx *gorm.DB) *GormPalletAuditLogRepository
	Create(log *models.PalletAuditLog) error
	List(filter AuditLogListFilter) ([]models.PalletAuditLog, int64, error)
}

// GormPalletAuditLogRepository GORM 实现
type GormPalletAuditLogRepository struct {
	db *gorm.DB
}

// NewPalletAuditLogRepository 创建托盘审计日志仓库
func NewPalletAuditLogRepository(db *gorm.DB) *GormPalletAuditLogRepository {
	return &GormPalletAuditLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPalletAuditLogRepository) WithTx(tx *gorm.DB) *GormPalletAuditLogRepository {
	if tx == nil {
		return r
	}
	return &GormPalletAuditLogRepository{db: tx}
}

// Create 写入审计日志
func (r *GormPalletAuditLogRepository) Create(log *models.PalletAuditLog) error {
	if log == nil {
		return nil
	}
	return r.db.Create(log).Error
}

// List 查询审计日志
func (r *GormPalletAuditLogRepository) List(filter AuditLogListFilter) ([]models.PalletAuditLog, int64, error) {
	query := r.db.Model(&models.PalletAuditLog{})
	if filter.OperatorID != 0 {
		query = query.Where("operator_id = ?", filter.OperatorID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if number := strings.TrimSpace(filter.PalletNumber); number != "" {
		query = query.Where("pallet_number = ?", number)
	}
	if tag := strings.TrimSpace(filter.ServiceTag); tag != "" {
		query = query.Where("service_tag = ?", tag)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	query, total, err := countAndPaginate(query, filter.Page, filter.PageSize)
	if err != nil {
		return nil, 0, err
	}

	logs := make([]models.PalletAuditLog, 0)
	if err := query.Order("id DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
