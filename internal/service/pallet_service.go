package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/metrics"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/queue"
	"github.com/palletdock/internal/repository"

	"gorm.io/gorm"
)

// palletCreateAttempts 编号冲突时整体重试一次
const palletCreateAttempts = 2

// PalletService 托盘生命周期服务
// 负责编号/形状分配以及槽位、锁定、删除、发运等状态变更，所有不变量在此校验。
type PalletService struct {
	db          *gorm.DB
	cfg         config.PalletConfig
	location    *time.Location
	palletRepo  *repository.GormPalletRepository
	systemRepo  *repository.GormSystemRepository
	audit       *PalletAuditService
	queueClient *queue.Client
	now         func() time.Time
}

// NewPalletService 创建托盘服务
func NewPalletService(
	db *gorm.DB,
	cfg config.PalletConfig,
	palletRepo *repository.GormPalletRepository,
	systemRepo *repository.GormSystemRepository,
	audit *PalletAuditService,
	queueClient *queue.Client,
) *PalletService {
	loc, err := cfg.LoadLocation()
	if err != nil {
		logger.Warnw("pallet_timezone_fallback_utc", "timezone", cfg.TimeZoneName(), "error", err)
		loc = time.UTC
	}
	return &PalletService{
		db:          db,
		cfg:         cfg,
		location:    loc,
		palletRepo:  palletRepo,
		systemRepo:  systemRepo,
		audit:       audit,
		queueClient: queueClient,
		now:         time.Now,
	}
}

// SetClock 替换时间源
func (s *PalletService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePalletInput 创建托盘输入
type CreatePalletInput struct {
	FactoryCode string
	DPN         string
}

// Create 创建空的 open 托盘
// 编号在当天作用域锁内分配；开启 assign_shape_on_create 时同一事务内再取形状锁分配形状。
func (s *PalletService) Create(ctx context.Context, actor Actor, input CreatePalletInput) (*models.Pallet, error) {
	start := time.Now()
	var (
		pallet *models.Pallet
		err    error
	)
	for attempt := 1; attempt <= palletCreateAttempts; attempt++ {
		pallet, err = s.createOnce(ctx, actor, input)
		if err == nil || !repository.IsUniqueViolation(err) {
			break
		}
		metrics.IncPalletNumberRetry()
		logger.Warnw("pallet_number_conflict_retry", "attempt", attempt, "request_id", actor.RequestID, "error", err)
	}
	if err != nil {
		result := metrics.ResultError
		if repository.IsUniqueViolation(err) {
			err = ErrPalletNumberConflict
			result = metrics.ResultConflict
		}
		metrics.ObservePalletCreate(result, time.Since(start))
		logger.Errorw("pallet_create_failed", "operator", actor.Username, "request_id", actor.RequestID, "error", err)
		return nil, err
	}
	metrics.ObservePalletCreate(metrics.ResultSuccess, time.Since(start))
	logger.Infow("pallet_created",
		"pallet_number", pallet.PalletNumber,
		"shape", pallet.ShapeValue(),
		"operator", actor.Username,
		"request_id", actor.RequestID,
	)
	return pallet, nil
}

func (s *PalletService) createOnce(ctx context.Context, actor Actor, input CreatePalletInput) (*models.Pallet, error) {
	ymd := FormatPalletDay(s.now(), s.location)
	scopes := []string{repository.AllocationScope(constants.AllocationScopePalletNumber, ymd)}
	if s.cfg.AssignShapeOnCreate {
		scopes = append(scopes, constants.AllocationScopePalletShape)
	}

	factoryCode := strings.TrimSpace(input.FactoryCode)
	if factoryCode == "" {
		factoryCode = s.cfg.FactoryCode
	}
	pallet := &models.Pallet{
		Status:      constants.PalletStatusOpen,
		FactoryCode: factoryCode,
		DPN:         strings.TrimSpace(input.DPN),
		CreatedBy:   actor.OperatorID,
	}

	err := repository.WithAllocationLocks(ctx, s.db, scopes, func(tx *gorm.DB) error {
		repo := s.palletRepo.WithTx(tx)
		existing, err := repo.ListNumbersWithPrefix(PalletNumberPrefix(ymd))
		if err != nil {
			return err
		}
		pallet.PalletNumber = NextPalletNumber(ymd, existing)

		if s.cfg.AssignShapeOnCreate {
			inUse, err := repo.ListOpenShapes()
			if err != nil {
				return err
			}
			shape, ok := AllocateShape(inUse)
			metrics.IncShapeAllocation(ok)
			if ok {
				pallet.Shape = &shape
			}
		}

		if err := repo.Create(pallet); err != nil {
			return err
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       constants.AuditActionCreate,
			PalletNumber: pallet.PalletNumber,
			Detail:       models.JSON{"shape": pallet.ShapeValue(), "factory_code": pallet.FactoryCode},
		})
	})
	if err != nil {
		return nil, err
	}
	return pallet, nil
}

// ShapeRepairResult 形状补齐结果
type ShapeRepairResult struct {
	Assigned     int `json:"assigned"`
	Cleared      int `json:"cleared"`
	Deduplicated int `json:"deduplicated"`
	Shapeless    int `json:"shapeless"`
}

// Changed 是否发生变更
func (r ShapeRepairResult) Changed() bool {
	return r.Assigned > 0 || r.Cleared > 0 || r.Deduplicated > 0
}

// RepairShapes 补齐 open 托盘形状，可重复执行
// 清理非 open 托盘残留形状，重复形状保留最早的托盘，再按创建时间为无形状托盘分配直至耗尽。
func (s *PalletService) RepairShapes(ctx context.Context, actor Actor) (ShapeRepairResult, error) {
	var result ShapeRepairResult
	err := repository.WithAllocationLock(ctx, s.db, constants.AllocationScopePalletShape, func(tx *gorm.DB) error {
		result = ShapeRepairResult{}
		repo := s.palletRepo.WithTx(tx)

		cleared, err := repo.ClearShapeOnClosed()
		if err != nil {
			return err
		}
		result.Cleared = int(cleared)

		shaped, err := repo.ListOpenWithShape()
		if err != nil {
			return err
		}
		inUse := make([]string, 0, len(shaped))
		seen := make(map[string]struct{}, len(shaped))
		for _, pallet := range shaped {
			shape := pallet.ShapeValue()
			_, duplicated := seen[shape]
			if duplicated || !IsKnownShape(shape) {
				if err := repo.UpdateShape(pallet.ID, nil); err != nil {
					return err
				}
				result.Deduplicated++
				continue
			}
			seen[shape] = struct{}{}
			inUse = append(inUse, shape)
		}

		pending, err := repo.ListOpenWithoutShape()
		if err != nil {
			return err
		}
		for idx, pallet := range pending {
			shape, ok := AllocateShape(inUse)
			if !ok {
				result.Shapeless = len(pending) - idx
				break
			}
			value := shape
			if err := repo.UpdateShape(pallet.ID, &value); err != nil {
				return err
			}
			inUse = append(inUse, shape)
			result.Assigned++
		}

		if !result.Changed() {
			return nil
		}
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:  actor,
			Action: constants.AuditActionShapeRepair,
			Detail: models.JSON{
				"assigned":     result.Assigned,
				"cleared":      result.Cleared,
				"deduplicated": result.Deduplicated,
			},
		})
	})
	if err != nil {
		logger.Errorw("pallet_shape_repair_failed", "request_id", actor.RequestID, "error", err)
		return ShapeRepairResult{}, err
	}
	metrics.AddShapeRepair("assigned", result.Assigned)
	metrics.AddShapeRepair("cleared", result.Cleared)
	metrics.AddShapeRepair("deduplicated", result.Deduplicated)
	if result.Changed() {
		logger.Infow("pallet_shape_repaired",
			"assigned", result.Assigned,
			"cleared", result.Cleared,
			"deduplicated", result.Deduplicated,
			"shapeless", result.Shapeless,
		)
	}
	return result, nil
}

// ListPallets 托盘列表（含 9 格槽位）
func (s *PalletService) ListPallets(filter repository.PalletListFilter) ([]models.Pallet, int64, error) {
	filter.WithSystems = true
	return s.palletRepo.List(filter)
}

// ListOpenPallets 返回全部 open 托盘，作为暂存编辑的基线
func (s *PalletService) ListOpenPallets() ([]models.Pallet, error) {
	pallets, _, err := s.palletRepo.List(repository.PalletListFilter{
		Status:      constants.PalletStatusOpen,
		WithSystems: true,
	})
	return pallets, err
}

// GetPallet 根据编号获取托盘
func (s *PalletService) GetPallet(number string) (*models.Pallet, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrInvalidPalletNumber
	}
	pallet, err := s.palletRepo.GetByNumber(number)
	if err != nil {
		return nil, err
	}
	if pallet == nil {
		return nil, ErrPalletNotFound
	}
	return pallet, nil
}

// observeStoreOperation 记录托盘存储操作指标
func observeStoreOperation(operation string, start time.Time, err error) {
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict), errors.Is(err, ErrPreconditionFailed):
		result = metrics.ResultConflict
	default:
		result = metrics.ResultError
	}
	metrics.ObserveStoreOperation(operation, result, time.Since(start))
}
