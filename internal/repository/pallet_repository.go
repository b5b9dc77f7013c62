package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PalletRepository 托盘与槽位数据访问接口
type PalletRepository interface {
	WithTx(tx *gorm.DB) *GormPalletRepository
	Create(pallet *models.Pallet) error
	GetByNumber(number string) (*models.Pallet, error)
	GetByNumberForUpdate(number string) (*models.Pallet, error)
	GetByID(id uint) (*models.Pallet, error)
	ListByNumbers(numbers []string) ([]models.Pallet, error)
	LockByIDs(ids []uint) ([]models.Pallet, error)
	List(filter PalletListFilter) ([]models.Pallet, int64, error)
	ListNumbersWithPrefix(prefix string) ([]string, error)
	ListOpenShapes() ([]string, error)
	ListOpenWithoutShape() ([]models.Pallet, error)
	ListOpenWithShape() ([]models.Pallet, error)
	ClearShapeOnClosed() (int64, error)
	UpdateShape(id uint, shape *string) error
	UpdateLock(id uint, locked bool) error
	MarkReleased(id uint, operatorID uint, at time.Time) error
	Delete(id uint) error
	CountSlots(palletID uint) (int64, error)
	ListSlots(palletID uint) ([]models.PalletSlot, error)
	GetSlotAt(palletID uint, slotIndex int) (*models.PalletSlot, error)
	GetSlotBySystemID(systemID uint) (*models.PalletSlot, error)
	FindSlotBySystemID(systemID uint) (*models.PalletSlot, error)
	CreateSlot(slot *models.PalletSlot) error
	MoveSlot(slotID uint, palletID uint, slotIndex int) error
}

// GormPalletRepository GORM 实现
type GormPalletRepository struct {
	db *gorm.DB
}

// NewPalletRepository 创建托盘仓库
func NewPalletRepository(db *gorm.DB) *GormPalletRepository {
	return &GormPalletRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPalletRepository) WithTx(tx *gorm.DB) *GormPalletRepository {
	if tx == nil {
		return r
	}
	return &GormPalletRepository{db: tx}
}

func (r *GormPalletRepository) withSlots(query *gorm.DB) *gorm.DB {
	return query.Preload("Slots", func(db *gorm.DB) *gorm.DB {
		return db.Order("slot_index ASC")
	}).Preload("Slots.System")
}

// Create 创建托盘
func (r *GormPalletRepository) Create(pallet *models.Pallet) error {
	return r.db.Create(pallet).Error
}

// GetByNumber 根据编号获取托盘（含槽位与机器）
func (r *GormPalletRepository) GetByNumber(number string) (*models.Pallet, error) {
	var pallet models.Pallet
	if err := r.withSlots(r.db).Where("pallet_number = ?", number).First(&pallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pallet, nil
}

// GetByNumberForUpdate 根据编号加行锁获取托盘（不含槽位）
func (r *GormPalletRepository) GetByNumberForUpdate(number string) (*models.Pallet, error) {
	var pallet models.Pallet
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pallet_number = ?", number).
		First(&pallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pallet, nil
}

// GetByID 根据 ID 获取托盘（不含槽位）
func (r *GormPalletRepository) GetByID(id uint) (*models.Pallet, error) {
	var pallet models.Pallet
	if err := r.db.First(&pallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pallet, nil
}

// ListByNumbers 批量按编号获取托盘（不加锁，用于确定加锁顺序）
func (r *GormPalletRepository) ListByNumbers(numbers []string) ([]models.Pallet, error) {
	pallets := make([]models.Pallet, 0, len(numbers))
	if len(numbers) == 0 {
		return pallets, nil
	}
	if err := r.db.Where("pallet_number IN ?", numbers).Find(&pallets).Error; err != nil {
		return nil, err
	}
	return pallets, nil
}

// LockByIDs 按 ID 升序加行锁，避免相向移动时死锁
func (r *GormPalletRepository) LockByIDs(ids []uint) ([]models.Pallet, error) {
	pallets := make([]models.Pallet, 0, len(ids))
	if len(ids) == 0 {
		return pallets, nil
	}
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&pallets).Error
	if err != nil {
		return nil, err
	}
	return pallets, nil
}

// List 托盘列表
func (r *GormPalletRepository) List(filter PalletListFilter) ([]models.Pallet, int64, error) {
	query := r.db.Model(&models.Pallet{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if shape := strings.TrimSpace(filter.Shape); shape != "" {
		query = query.Where("shape = ?", shape)
	}
	if filter.Locked != nil {
		query = query.Where("locked = ?", *filter.Locked)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		slotQuery := r.db.Model(&models.PalletSlot{}).
			Select("pallet_slots.pallet_id").
			Joins("JOIN systems ON systems.id = pallet_slots.system_id").
			Where("systems.service_tag "+likeOperatorByDialect(dbDialectName(r.db))+" ?", like)
		condition, argCount := buildLikeCondition(r.db, []string{"pallet_number"})
		args := repeatLikeArgs(like, argCount)
		args = append(args, slotQuery)
		query = query.Where("("+condition+" OR id IN (?))", args...)
	}

	query, total, err := countAndPaginate(query, filter.Page, filter.PageSize)
	if err != nil {
		return nil, 0, err
	}

	query = query.Preload("Slots", func(db *gorm.DB) *gorm.DB {
		return db.Order("slot_index ASC")
	})
	if filter.WithSystems {
		query = query.Preload("Slots.System")
	}

	var pallets []models.Pallet
	if err := query.Order("created_at ASC").Order("id ASC").Find(&pallets).Error; err != nil {
		return nil, 0, err
	}
	return pallets, total, nil
}

// ListNumbersWithPrefix 列出指定前缀的全部托盘编号（含软删除，保证编号不复用）
func (r *GormPalletRepository) ListNumbersWithPrefix(prefix string) ([]string, error) {
	numbers := make([]string, 0)
	err := r.db.Unscoped().
		Model(&models.Pallet{}).
		Where("pallet_number LIKE ?", prefix+"%").
		Pluck("pallet_number", &numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

// ListOpenShapes 列出 open 托盘当前占用的形状
func (r *GormPalletRepository) ListOpenShapes() ([]string, error) {
	shapes := make([]string, 0)
	err := r.db.Model(&models.Pallet{}).
		Where("status = ? AND shape IS NOT NULL AND shape <> ''", constants.PalletStatusOpen).
		Pluck("shape", &shapes).Error
	if err != nil {
		return nil, err
	}
	return shapes, nil
}

// ListOpenWithoutShape 按创建时间升序列出未分配形状的 open 托盘
func (r *GormPalletRepository) ListOpenWithoutShape() ([]models.Pallet, error) {
	pallets := make([]models.Pallet, 0)
	err := r.db.
		Where("status = ? AND (shape IS NULL OR shape = '')", constants.PalletStatusOpen).
		Order("created_at ASC").
		Order("id ASC").
		Find(&pallets).Error
	if err != nil {
		return nil, err
	}
	return pallets, nil
}

// ListOpenWithShape 按创建时间升序列出已分配形状的 open 托盘
func (r *GormPalletRepository) ListOpenWithShape() ([]models.Pallet, error) {
	pallets := make([]models.Pallet, 0)
	err := r.db.
		Where("status = ? AND shape IS NOT NULL AND shape <> ''", constants.PalletStatusOpen).
		Order("created_at ASC").
		Order("id ASC").
		Find(&pallets).Error
	if err != nil {
		return nil, err
	}
	return pallets, nil
}

// ClearShapeOnClosed 清除非 open 托盘（含软删除）上残留的形状
func (r *GormPalletRepository) ClearShapeOnClosed() (int64, error) {
	result := r.db.Unscoped().
		Model(&models.Pallet{}).
		Where("shape IS NOT NULL AND (status <> ? OR deleted_at IS NOT NULL)", constants.PalletStatusOpen).
		Update("shape", nil)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateShape 更新形状，nil 表示清除
func (r *GormPalletRepository) UpdateShape(id uint, shape *string) error {
	return r.db.Model(&models.Pallet{}).Where("id = ?", id).Update("shape", shape).Error
}

// UpdateLock 更新锁定状态
func (r *GormPalletRepository) UpdateLock(id uint, locked bool) error {
	return r.db.Model(&models.Pallet{}).Where("id = ?", id).Update("locked", locked).Error
}

// MarkReleased 标记托盘发运并释放形状
func (r *GormPalletRepository) MarkReleased(id uint, operatorID uint, at time.Time) error {
	updates := map[string]interface{}{
		"status":      constants.PalletStatusReleased,
		"released_at": at,
		"shape":       nil,
		"updated_at":  at,
	}
	if operatorID > 0 {
		updates["released_by"] = operatorID
	}
	result := r.db.Model(&models.Pallet{}).
		Where("id = ? AND status = ?", id, constants.PalletStatusOpen).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 软删除托盘并释放形状
func (r *GormPalletRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	if err := r.db.Model(&models.Pallet{}).Where("id = ?", id).Update("shape", nil).Error; err != nil {
		return err
	}
	return r.db.Delete(&models.Pallet{}, id).Error
}

// CountSlots 统计托盘已占用槽位数
func (r *GormPalletRepository) CountSlots(palletID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.PalletSlot{}).Where("pallet_id = ?", palletID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListSlots 列出托盘已占用槽位（含机器）
func (r *GormPalletRepository) ListSlots(palletID uint) ([]models.PalletSlot, error) {
	slots := make([]models.PalletSlot, 0)
	err := r.db.Preload("System").
		Where("pallet_id = ?", palletID).
		Order("slot_index ASC").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// GetSlotAt 获取托盘指定位置的槽位
func (r *GormPalletRepository) GetSlotAt(palletID uint, slotIndex int) (*models.PalletSlot, error) {
	var slot models.PalletSlot
	err := r.db.Where("pallet_id = ? AND slot_index = ?", palletID, slotIndex).First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

// GetSlotBySystemID 获取机器当前占用的槽位
func (r *GormPalletRepository) GetSlotBySystemID(systemID uint) (*models.PalletSlot, error) {
	var slot models.PalletSlot
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("system_id = ?", systemID).
		First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

// FindSlotBySystemID 获取机器当前占用的槽位（不加锁）
func (r *GormPalletRepository) FindSlotBySystemID(systemID uint) (*models.PalletSlot, error) {
	var slot models.PalletSlot
	if err := r.db.Where("system_id = ?", systemID).First(&slot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

// CreateSlot 占用槽位
func (r *GormPalletRepository) CreateSlot(slot *models.PalletSlot) error {
	return r.db.Create(slot).Error
}

// MoveSlot 将槽位记录迁移到目标托盘的目标位置，单条 UPDATE 保证机器始终只占一个槽位
func (r *GormPalletRepository) MoveSlot(slotID uint, palletID uint, slotIndex int) error {
	result := r.db.Model(&models.PalletSlot{}).
		Where("id = ?", slotID).
		Updates(map[string]interface{}{
			"pallet_id":  palletID,
			"slot_index": slotIndex,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
