package models

import "time"

// PalletAuditLog 托盘操作审计日志
// 说明：记录每一次托盘变更的操作人，用于追溯移动、锁定、删除与发运。
type PalletAuditLog struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	OperatorID       uint      `gorm:"index;not null;default:0" json:"operator_id"`
	OperatorUsername string    `gorm:"type:varchar(100);index;not null;default:''" json:"operator_username"`
	Action           string    `gorm:"type:varchar(32);index;not null" json:"action"`
	PalletNumber     string    `gorm:"type:varchar(32);index;not null;default:''" json:"pallet_number"`
	ServiceTag       string    `gorm:"type:varchar(32);index;not null;default:''" json:"service_tag"`
	RequestID        string    `gorm:"type:varchar(64);index;not null;default:''" json:"request_id"`
	DetailJSON       JSON      `gorm:"type:json" json:"detail"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (PalletAuditLog) TableName() string {
	return "pallet_audit_logs"
}
