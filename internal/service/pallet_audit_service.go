package service

import (
	"strings"
	"time"

	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/repository"

	"gorm.io/gorm"
)

// Actor 发起托盘变更的操作员
type Actor struct {
	OperatorID uint
	Username   string
	RequestID  string
}

// SystemActor 后台任务使用的系统身份
var SystemActor = Actor{Username: "system"}

// PalletAuditRecordInput 托盘审计记录输入
type PalletAuditRecordInput struct {
	Actor        Actor
	Action       string
	PalletNumber string
	ServiceTag   string
	Detail       models.JSON
}

// PalletAuditService 托盘审计服务
type PalletAuditService struct {
	repo *repository.GormPalletAuditLogRepository
}

// NewPalletAuditService 创建托盘审计服务
func NewPalletAuditService(repo *repository.GormPalletAuditLogRepository) *PalletAuditService {
	return &PalletAuditService{repo: repo}
}

// RecordTx 在事务内写入审计日志，与业务变更一同提交
func (s *PalletAuditService) RecordTx(tx *gorm.DB, input PalletAuditRecordInput) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if strings.TrimSpace(input.Action) == "" {
		return nil
	}
	item := &models.PalletAuditLog{
		OperatorID:       input.Actor.OperatorID,
		OperatorUsername: strings.TrimSpace(input.Actor.Username),
		Action:           strings.TrimSpace(input.Action),
		PalletNumber:     strings.TrimSpace(input.PalletNumber),
		ServiceTag:       strings.TrimSpace(input.ServiceTag),
		RequestID:        strings.TrimSpace(input.Actor.RequestID),
		DetailJSON:       input.Detail,
		CreatedAt:        time.Now(),
	}
	return s.repo.WithTx(tx).Create(item)
}

// List 查询审计日志
func (s *PalletAuditService) List(filter repository.AuditLogListFilter) ([]models.PalletAuditLog, int64, error) {
	if s == nil || s.repo == nil {
		return []models.PalletAuditLog{}, 0, nil
	}
	return s.repo.List(filter)
}
