package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/queue"
	"github.com/palletdock/internal/repository"

	"gorm.io/gorm"
)

// MoveSystemInput 托盘间移动机器输入
type MoveSystemInput struct {
	ServiceTag       string
	FromPalletNumber string
	ToPalletNumber   string
	ToSlot           *int
}

// AssignSystemInput 机器上托盘输入
type AssignSystemInput struct {
	ServiceTag   string
	PalletNumber string
	Slot         *int
}

// SlotPlacement 机器落位结果
type SlotPlacement struct {
	ServiceTag       string `json:"service_tag"`
	FromPalletNumber string `json:"from_pallet_number,omitempty"`
	PalletNumber     string `json:"pallet_number"`
	SlotIndex        int    `json:"slot_index"`
}

// MoveSystem 在两个 open 托盘间移动机器
// 两个托盘按 ID 升序加锁；腾出源槽位与占用目标槽位由同一条 UPDATE 完成。
func (s *PalletService) MoveSystem(ctx context.Context, actor Actor, input MoveSystemInput) (*SlotPlacement, error) {
	start := time.Now()
	placement, err := s.moveSystem(ctx, actor, input)
	observeStoreOperation("move", start, err)
	if err != nil {
		logger.Warnw("pallet_move_failed",
			"service_tag", input.ServiceTag,
			"from", input.FromPalletNumber,
			"to", input.ToPalletNumber,
			"request_id", actor.RequestID,
			"error", err,
		)
		return nil, err
	}
	logger.Infow("pallet_system_moved",
		"service_tag", placement.ServiceTag,
		"from", placement.FromPalletNumber,
		"to", placement.PalletNumber,
		"slot_index", placement.SlotIndex,
		"operator", actor.Username,
		"request_id", actor.RequestID,
	)
	s.enqueueLabels(ctx, actor, placement.PalletNumber, []string{placement.ServiceTag})
	return placement, nil
}

func (s *PalletService) moveSystem(ctx context.Context, actor Actor, input MoveSystemInput) (*SlotPlacement, error) {
	tag := normalizeServiceTag(input.ServiceTag)
	from := strings.TrimSpace(input.FromPalletNumber)
	to := strings.TrimSpace(input.ToPalletNumber)
	if tag == "" {
		return nil, ErrInvalidServiceTag
	}
	if from == "" || to == "" {
		return nil, ErrInvalidPalletNumber
	}
	if from == to {
		return nil, ErrSamePallet
	}
	if input.ToSlot != nil && !validSlotIndex(*input.ToSlot) {
		return nil, ErrInvalidSlot
	}

	var placement *SlotPlacement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.palletRepo.WithTx(tx)
		source, target, err := lockPalletPair(repo, from, to)
		if err != nil {
			return err
		}
		if !source.IsOpen() || !target.IsOpen() {
			return ErrPalletNotOpen
		}
		if source.Locked || target.Locked {
			return ErrPalletLocked
		}

		system, err := s.systemRepo.WithTx(tx).GetByServiceTag(tag)
		if err != nil {
			return err
		}
		if system == nil {
			return ErrSystemNotFound
		}
		slot, err := repo.GetSlotBySystemID(system.ID)
		if err != nil {
			return err
		}
		if slot == nil || slot.PalletID != source.ID {
			return ErrSystemNotInPallet
		}

		slotIndex, err := pickSlot(repo, target.ID, input.ToSlot)
		if err != nil {
			return err
		}
		if err := repo.MoveSlot(slot.ID, target.ID, slotIndex); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrSlotOccupied
			}
			return err
		}

		placement = &SlotPlacement{
			ServiceTag:       system.ServiceTag,
			FromPalletNumber: source.PalletNumber,
			PalletNumber:     target.PalletNumber,
			SlotIndex:        slotIndex,
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       constants.AuditActionMove,
			PalletNumber: target.PalletNumber,
			ServiceTag:   system.ServiceTag,
			Detail: models.JSON{
				"from":       source.PalletNumber,
				"from_slot":  slot.SlotIndex,
				"to":         target.PalletNumber,
				"slot_index": slotIndex,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return placement, nil
}

// AssignSystem 将未上托盘的机器放入 open 托盘
func (s *PalletService) AssignSystem(ctx context.Context, actor Actor, input AssignSystemInput) (*SlotPlacement, error) {
	start := time.Now()
	placement, err := s.assignSystem(ctx, actor, input)
	observeStoreOperation("assign", start, err)
	if err != nil {
		logger.Warnw("pallet_assign_failed",
			"service_tag", input.ServiceTag,
			"pallet_number", input.PalletNumber,
			"request_id", actor.RequestID,
			"error", err,
		)
		return nil, err
	}
	logger.Infow("pallet_system_assigned",
		"service_tag", placement.ServiceTag,
		"pallet_number", placement.PalletNumber,
		"slot_index", placement.SlotIndex,
		"operator", actor.Username,
		"request_id", actor.RequestID,
	)
	s.enqueueLabels(ctx, actor, placement.PalletNumber, []string{placement.ServiceTag})
	return placement, nil
}

func (s *PalletService) assignSystem(ctx context.Context, actor Actor, input AssignSystemInput) (*SlotPlacement, error) {
	tag := normalizeServiceTag(input.ServiceTag)
	number := strings.TrimSpace(input.PalletNumber)
	if tag == "" {
		return nil, ErrInvalidServiceTag
	}
	if number == "" {
		return nil, ErrInvalidPalletNumber
	}
	if input.Slot != nil && !validSlotIndex(*input.Slot) {
		return nil, ErrInvalidSlot
	}

	var placement *SlotPlacement
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
		if pallet.Locked {
			return ErrPalletLocked
		}

		system, err := s.systemRepo.WithTx(tx).GetByServiceTag(tag)
		if err != nil {
			return err
		}
		if system == nil {
			return ErrSystemNotFound
		}
		current, err := repo.GetSlotBySystemID(system.ID)
		if err != nil {
			return err
		}
		if current != nil {
			holder, err := repo.GetByID(current.PalletID)
			if err != nil {
				return err
			}
			if holder != nil && !holder.IsOpen() {
				return ErrSystemShipped
			}
			return ErrSystemAlreadyOnPallet
		}

		slotIndex, err := pickSlot(repo, pallet.ID, input.Slot)
		if err != nil {
			return err
		}
		if err := repo.CreateSlot(&models.PalletSlot{PalletID: pallet.ID, SlotIndex: slotIndex, SystemID: system.ID}); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrSlotOccupied
			}
			return err
		}

		placement = &SlotPlacement{
			ServiceTag:   system.ServiceTag,
			PalletNumber: pallet.PalletNumber,
			SlotIndex:    slotIndex,
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       constants.AuditActionAssign,
			PalletNumber: pallet.PalletNumber,
			ServiceTag:   system.ServiceTag,
			Detail:       models.JSON{"slot_index": slotIndex},
		})
	})
	if err != nil {
		return nil, err
	}
	return placement, nil
}

// lockPalletPair 以 ID 升序锁定源与目标托盘
func lockPalletPair(repo *repository.GormPalletRepository, from, to string) (*models.Pallet, *models.Pallet, error) {
	found, err := repo.ListByNumbers([]string{from, to})
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uint, 0, len(found))
	for _, pallet := range found {
		ids = append(ids, pallet.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	locked, err := repo.LockByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	var source, target *models.Pallet
	for i := range locked {
		switch locked[i].PalletNumber {
		case from:
			source = &locked[i]
		case to:
			target = &locked[i]
		}
	}
	if source == nil || target == nil {
		return nil, nil, ErrPalletNotFound
	}
	return source, target, nil
}

// pickSlot 选择目标槽位：指定时校验空闲，否则取第一个空槽
func pickSlot(repo *repository.GormPalletRepository, palletID uint, requested *int) (int, error) {
	if requested != nil {
		occupant, err := repo.GetSlotAt(palletID, *requested)
		if err != nil {
			return 0, err
		}
		if occupant != nil {
			return 0, ErrSlotOccupied
		}
		return *requested, nil
	}
	slots, err := repo.ListSlots(palletID)
	if err != nil {
		return 0, err
	}
	var occupied [constants.PalletSlotCount]bool
	for _, slot := range slots {
		if validSlotIndex(slot.SlotIndex) {
			occupied[slot.SlotIndex] = true
		}
	}
	for idx, taken := range occupied {
		if !taken {
			return idx, nil
		}
	}
	return 0, ErrPalletFull
}

func (s *PalletService) enqueueLabels(ctx context.Context, actor Actor, palletNumber string, tags []string) {
	if s.queueClient == nil {
		return
	}
	err := s.queueClient.EnqueueSystemLabels(ctx, queue.SystemLabelsPayload{
		PalletNumber: palletNumber,
		ServiceTags:  tags,
		RequestID:    actor.RequestID,
	})
	if err != nil {
		logger.Warnw("pallet_enqueue_labels_failed", "pallet_number", palletNumber, "service_tags", tags, "error", err)
	}
}

func validSlotIndex(idx int) bool {
	return idx >= 0 && idx < constants.PalletSlotCount
}

func normalizeServiceTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}
