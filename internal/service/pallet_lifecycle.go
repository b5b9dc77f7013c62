package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/queue"

	"gorm.io/gorm"
)

// DeletePallet 删除空托盘，释放其形状，编号保留不复用
func (s *PalletService) DeletePallet(ctx context.Context, actor Actor, number string) error {
	start := time.Now()
	number = strings.TrimSpace(number)
	err := s.deletePallet(ctx, actor, number)
	observeStoreOperation("delete", start, err)
	if err != nil {
		logger.Warnw("pallet_delete_failed", "pallet_number", number, "request_id", actor.RequestID, "error", err)
		return err
	}
	logger.Infow("pallet_deleted", "pallet_number", number, "operator", actor.Username, "request_id", actor.RequestID)
	return nil
}

func (s *PalletService) deletePallet(ctx context.Context, actor Actor, number string) error {
	if number == "" {
		return ErrInvalidPalletNumber
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.palletRepo.WithTx(tx)
		pallet, err := repo.GetByNumberForUpdate(number)
		if err != nil {
			return err
		}
		if pallet == nil {
			return ErrPalletNotFound
		}
		if !pallet.IsOpen() {
			return ErrPalletNotOpen
		}
		if pallet.Locked {
			return ErrPalletLocked
		}
		occupied, err := repo.CountSlots(pallet.ID)
		if err != nil {
			return err
		}
		if occupied > 0 {
			return ErrPalletNotEmpty
		}
		if err := repo.Delete(pallet.ID); err != nil {
			return err
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       constants.AuditActionDelete,
			PalletNumber: pallet.PalletNumber,
			Detail:       models.JSON{"shape": pallet.ShapeValue()},
		})
	})
}

// SetLock 设置托盘锁定状态，幂等
func (s *PalletService) SetLock(ctx context.Context, actor Actor, number string, locked bool) (*models.Pallet, error) {
	start := time.Now()
	number = strings.TrimSpace(number)
	pallet, err := s.setLock(ctx, actor, number, locked)
	observeStoreOperation("lock", start, err)
	if err != nil {
		logger.Warnw("pallet_lock_failed", "pallet_number", number, "locked", locked, "request_id", actor.RequestID, "error", err)
		return nil, err
	}
	logger.Infow("pallet_lock_set", "pallet_number", number, "locked", locked, "operator", actor.Username, "request_id", actor.RequestID)
	return pallet, nil
}

func (s *PalletService) setLock(ctx context.Context, actor Actor, number string, locked bool) (*models.Pallet, error) {
	if number == "" {
		return nil, ErrInvalidPalletNumber
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.palletRepo.WithTx(tx)
		pallet, err := repo.GetByNumberForUpdate(number)
		if err != nil {
			return err
		}
		if pallet == nil {
			return ErrPalletNotFound
		}
		if !pallet.IsOpen() {
			return ErrPalletNotOpen
		}
		if pallet.Locked == locked {
			return nil
		}
		if err := repo.UpdateLock(pallet.ID, locked); err != nil {
			return err
		}
		action := constants.AuditActionUnlock
		if locked {
			action = constants.AuditActionLock
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       action,
			PalletNumber: pallet.PalletNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetPallet(number)
}

// Release 发运托盘
// 所有已占用槽位的机器都必须有 DOA 编号，否则返回 MissingDOAError 并保持 open。
// 成功后状态置为 released、记录发运时间并释放形状，随后投递发运清单任务。
func (s *PalletService) Release(ctx context.Context, actor Actor, number string) (*models.Pallet, error) {
	start := time.Now()
	number = strings.TrimSpace(number)
	err := s.release(ctx, actor, number)
	observeStoreOperation("release", start, err)
	if err != nil {
		var missing *MissingDOAError
		if errors.As(err, &missing) {
			logger.Warnw("pallet_release_blocked_missing_doa",
				"pallet_number", number,
				"missing_service_tags", missing.ServiceTags,
				"request_id", actor.RequestID,
			)
		} else {
			logger.Warnw("pallet_release_failed", "pallet_number", number, "request_id", actor.RequestID, "error", err)
		}
		return nil, err
	}
	logger.Infow("pallet_released", "pallet_number", number, "operator", actor.Username, "request_id", actor.RequestID)

	if s.queueClient != nil {
		if err := s.queueClient.EnqueuePalletManifest(ctx, queue.PalletManifestPayload{
			PalletNumber: number,
			RequestID:    actor.RequestID,
		}); err != nil {
			logger.Warnw("pallet_enqueue_manifest_failed", "pallet_number", number, "error", err)
		}
	}
	return s.GetPallet(number)
}

func (s *PalletService) release(ctx context.Context, actor Actor, number string) error {
	if number == "" {
		return ErrInvalidPalletNumber
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.palletRepo.WithTx(tx)
		pallet, err := repo.GetByNumberForUpdate(number)
		if err != nil {
			return err
		}
		if pallet == nil {
			return ErrPalletNotFound
		}
		if !pallet.IsOpen() {
			return ErrPalletNotOpen
		}
		slots, err := repo.ListSlots(pallet.ID)
		if err != nil {
			return err
		}
		missing := make([]string, 0)
		tags := make([]string, 0, len(slots))
		for _, slot := range slots {
			if slot.System == nil {
				continue
			}
			tags = append(tags, slot.System.ServiceTag)
			if !slot.System.HasDOA() {
				missing = append(missing, slot.System.ServiceTag)
			}
		}
		if len(missing) > 0 {
			return NewMissingDOAError(pallet.PalletNumber, missing)
		}

		if err := repo.MarkReleased(pallet.ID, actor.OperatorID, s.now()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPalletNotOpen
			}
			return err
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       constants.AuditActionRelease,
			PalletNumber: pallet.PalletNumber,
			Detail:       models.JSON{"service_tags": tags, "shape": pallet.ShapeValue()},
		})
	})
}
