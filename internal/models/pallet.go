package models

import (
	"time"

	"github.com/palletdock/internal/constants"

	"gorm.io/gorm"
)

// Pallet 托盘表
// 说明：pallet_number 唯一索引覆盖软删除记录，保证编号永不复用。
type Pallet struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                           // 主键
	PalletNumber string         `gorm:"type:varchar(32);uniqueIndex;not null" json:"pallet_number"`     // 托盘编号 PALLET-YYYYMMDD-NNN
	Status       string         `gorm:"type:varchar(16);index;not null;default:'open'" json:"status"`   // 状态（open/released）
	Locked       bool           `gorm:"not null;default:false" json:"locked"`                           // 是否锁定
	Shape        *string        `gorm:"type:varchar(32);index" json:"shape"`                            // 形状标识，仅 open 托盘间唯一
	FactoryCode  string         `gorm:"type:varchar(32);not null;default:''" json:"factory_code"`       // 工厂代码
	DPN          string         `gorm:"type:varchar(64);not null;default:''" json:"dpn"`                // 托盘 DPN（混装为空）
	CreatedBy    uint           `gorm:"index;not null;default:0" json:"created_by"`                     // 创建人
	ReleasedBy   *uint          `gorm:"index" json:"released_by,omitempty"`                             // 发运人
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                        // 创建时间
	ReleasedAt   *time.Time     `gorm:"index" json:"released_at"`                                       // 发运时间
	UpdatedAt    time.Time      `json:"updated_at"`                                                     // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                                 // 软删除时间

	Slots []PalletSlot `gorm:"foreignKey:PalletID" json:"-"` // 已占用槽位
}

// TableName 指定表名
func (Pallet) TableName() string {
	return "pallets"
}

// IsOpen 是否处于 open 状态
func (p *Pallet) IsOpen() bool {
	return p != nil && p.Status == constants.PalletStatusOpen
}

// ShapeValue 返回形状字符串，未分配时为空
func (p *Pallet) ShapeValue() string {
	if p == nil || p.Shape == nil {
		return ""
	}
	return *p.Shape
}

// SlotArray 将已占用槽位展开为固定 9 格数组，空槽为 nil
func (p *Pallet) SlotArray() [constants.PalletSlotCount]*PalletSlot {
	var out [constants.PalletSlotCount]*PalletSlot
	if p == nil {
		return out
	}
	for i := range p.Slots {
		slot := &p.Slots[i]
		if slot.SlotIndex < 0 || slot.SlotIndex >= constants.PalletSlotCount {
			continue
		}
		out[slot.SlotIndex] = slot
	}
	return out
}

// PalletSlot 托盘槽位占用表
// 说明：仅在槽位被占用时存在记录；system_id 唯一，保证一台机器最多占用一个槽位。
type PalletSlot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PalletID  uint      `gorm:"not null;uniqueIndex:idx_pallet_slot_position,priority:1" json:"pallet_id"`
	SlotIndex int       `gorm:"not null;uniqueIndex:idx_pallet_slot_position,priority:2" json:"slot_index"`
	SystemID  uint      `gorm:"not null;uniqueIndex" json:"system_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	System *System `gorm:"foreignKey:SystemID" json:"system,omitempty"`
}

// TableName 指定表名
func (PalletSlot) TableName() string {
	return "pallet_slots"
}
