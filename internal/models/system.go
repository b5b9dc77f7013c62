package models

import (
	"strings"
	"time"
)

// System 机器（槽位占用者）表
type System struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	ServiceTag   string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"service_tag"`
	PPID         string    `gorm:"column:ppid;type:varchar(64);not null;default:''" json:"ppid"`
	DPN          string    `gorm:"column:dpn;type:varchar(64);not null;default:''" json:"dpn"`
	Config       string    `gorm:"type:varchar(128);not null;default:''" json:"config"`
	DellCustomer string    `gorm:"type:varchar(128);not null;default:''" json:"dell_customer"`
	Issue        string    `gorm:"type:text" json:"issue"`
	Location     string    `gorm:"type:varchar(64);not null;default:''" json:"location"`
	FactoryCode  string    `gorm:"type:varchar(32);not null;default:''" json:"factory_code"`
	DOANumber    *string   `gorm:"column:doa_number;type:varchar(20)" json:"doa_number"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (System) TableName() string {
	return "systems"
}

// HasDOA 是否已填写 DOA 编号
func (s *System) HasDOA() bool {
	return s != nil && s.DOANumber != nil && strings.TrimSpace(*s.DOANumber) != ""
}

// DOAValue 返回 DOA 编号，未填写时为空
func (s *System) DOAValue() string {
	if s == nil || s.DOANumber == nil {
		return ""
	}
	return *s.DOANumber
}
