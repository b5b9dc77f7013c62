package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/palletdock/internal/cache"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/repository"

	"gorm.io/gorm"
)

// SystemService 机器查询与 DOA 编号维护
type SystemService struct {
	db         *gorm.DB
	cfg        config.PalletConfig
	systemRepo *repository.GormSystemRepository
	palletRepo *repository.GormPalletRepository
	audit      *PalletAuditService
}

// NewSystemService 创建机器服务
func NewSystemService(
	db *gorm.DB,
	cfg config.PalletConfig,
	systemRepo *repository.GormSystemRepository,
	palletRepo *repository.GormPalletRepository,
	audit *PalletAuditService,
) *SystemService {
	return &SystemService{
		db:         db,
		cfg:        cfg,
		systemRepo: systemRepo,
		palletRepo: palletRepo,
		audit:      audit,
	}
}

// NormalizeDOANumber 规范化 DOA 编号：去除首尾空白并截断到 20 个字符，空串表示清除
func NormalizeDOANumber(raw string) (*string, error) {
	value := strings.TrimSpace(raw)
	for _, r := range value {
		if unicode.IsControl(r) {
			return nil, ErrInvalidDOA
		}
	}
	if value == "" {
		return nil, nil
	}
	runes := []rune(value)
	if len(runes) > constants.DOANumberMaxLength {
		value = strings.TrimSpace(string(runes[:constants.DOANumberMaxLength]))
	}
	return &value, nil
}

// GetSystem 按服务标签查询机器，优先读缓存
func (s *SystemService) GetSystem(ctx context.Context, serviceTag string) (*models.System, error) {
	tag := normalizeServiceTag(serviceTag)
	if tag == "" {
		return nil, ErrInvalidServiceTag
	}
	if cached, hit, err := cache.GetSystem(ctx, tag); err == nil && hit {
		return cached, nil
	} else if err != nil {
		logger.Warnw("system_cache_get_failed", "service_tag", tag, "error", err)
	}

	system, err := s.systemRepo.GetByServiceTag(tag)
	if err != nil {
		return nil, err
	}
	if system == nil {
		return nil, ErrSystemNotFound
	}
	if err := cache.SetSystem(ctx, system, s.cfg.SystemCacheTTL()); err != nil {
		logger.Warnw("system_cache_set_failed", "service_tag", tag, "error", err)
	}
	return system, nil
}

// ListSystems 机器列表
func (s *SystemService) ListSystems(filter repository.SystemListFilter) ([]models.System, int64, error) {
	return s.systemRepo.List(filter)
}

// SetDOA 更新机器 DOA 编号
// 机器在托盘上时先锁托盘行，与发运校验串行化；锁定托盘上的机器同样允许修改。
func (s *SystemService) SetDOA(ctx context.Context, actor Actor, serviceTag string, doaNumber string) (*models.System, error) {
	start := time.Now()
	system, err := s.setDOA(ctx, actor, serviceTag, doaNumber)
	observeStoreOperation("set_doa", start, err)
	if err != nil {
		logger.Warnw("system_set_doa_failed", "service_tag", serviceTag, "request_id", actor.RequestID, "error", err)
		return nil, err
	}
	if err := cache.DelSystem(ctx, system.ServiceTag); err != nil {
		logger.Warnw("system_cache_invalidate_failed", "service_tag", system.ServiceTag, "error", err)
	}
	logger.Infow("system_doa_updated",
		"service_tag", system.ServiceTag,
		"cleared", system.DOANumber == nil,
		"operator", actor.Username,
		"request_id", actor.RequestID,
	)
	return system, nil
}

func (s *SystemService) setDOA(ctx context.Context, actor Actor, serviceTag string, doaNumber string) (*models.System, error) {
	tag := normalizeServiceTag(serviceTag)
	if tag == "" {
		return nil, ErrInvalidServiceTag
	}
	normalized, err := NormalizeDOANumber(doaNumber)
	if err != nil {
		return nil, err
	}

	var updated *models.System
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		palletRepo := s.palletRepo.WithTx(tx)
		systemRepo := s.systemRepo.WithTx(tx)

		system, err := systemRepo.GetByServiceTag(tag)
		if err != nil {
			return err
		}
		if system == nil {
			return ErrSystemNotFound
		}

		palletNumber := ""
		slot, err := palletRepo.FindSlotBySystemID(system.ID)
		if err != nil {
			return err
		}
		if slot != nil {
			holder, err := palletRepo.LockByIDs([]uint{slot.PalletID})
			if err != nil {
				return err
			}
			if len(holder) > 0 {
				palletNumber = holder[0].PalletNumber
			}
		}

		locked, err := systemRepo.GetByServiceTagForUpdate(tag)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrSystemNotFound
		}
		if err := systemRepo.UpdateDOA(locked.ID, normalized); err != nil {
			return err
		}
		previous := locked.DOAValue()
		locked.DOANumber = normalized
		updated = locked

		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:        actor,
			Action:       constants.AuditActionSetDOA,
			PalletNumber: palletNumber,
			ServiceTag:   locked.ServiceTag,
			Detail:       models.JSON{"previous": previous, "doa_number": locked.DOAValue()},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpsertSystemInput 机器档案写入输入
type UpsertSystemInput struct {
	ServiceTag   string
	PPID         string
	DPN          string
	Config       string
	DellCustomer string
	Issue        string
	Location     string
	FactoryCode  string
	DOANumber    *string
}

// UpsertSystem 新建或更新机器档案
func (s *SystemService) UpsertSystem(ctx context.Context, actor Actor, input UpsertSystemInput) (*models.System, bool, error) {
	tag := normalizeServiceTag(input.ServiceTag)
	if tag == "" {
		return nil, false, ErrInvalidServiceTag
	}
	var doa *string
	if input.DOANumber != nil {
		normalized, err := NormalizeDOANumber(*input.DOANumber)
		if err != nil {
			return nil, false, err
		}
		doa = normalized
	}

	var (
		saved   *models.System
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.systemRepo.WithTx(tx)
		system, err := repo.GetByServiceTagForUpdate(tag)
		if err != nil {
			return err
		}
		if system == nil {
			system = &models.System{ServiceTag: tag}
			created = true
		}
		system.PPID = strings.TrimSpace(input.PPID)
		system.DPN = strings.TrimSpace(input.DPN)
		system.Config = strings.TrimSpace(input.Config)
		system.DellCustomer = strings.TrimSpace(input.DellCustomer)
		system.Issue = strings.TrimSpace(input.Issue)
		system.Location = strings.TrimSpace(input.Location)
		system.FactoryCode = strings.TrimSpace(input.FactoryCode)
		if input.DOANumber != nil {
			system.DOANumber = doa
		}
		if created {
			err = repo.Create(system)
		} else {
			err = repo.Update(system)
		}
		if err != nil {
			return err
		}
		saved = system
		return s.audit.RecordTx(tx, PalletAuditRecordInput{
			Actor:      actor,
			Action:     constants.AuditActionSystemSave,
			ServiceTag: tag,
			Detail:     models.JSON{"created": created},
		})
	})
	if err != nil {
		return nil, false, err
	}
	if err := cache.DelSystem(ctx, tag); err != nil {
		logger.Warnw("system_cache_invalidate_failed", "service_tag", tag, "error", err)
	}
	return saved, created, nil
}

// DOAImportResult DOA 批量导入结果
type DOAImportResult struct {
	Updated      int      `json:"updated"`
	Skipped      int      `json:"skipped"`
	NotFound     int      `json:"not_found"`
	NotFoundTags []string `json:"not_found_tags"`
}

// ImportDOANumbers 从 CSV（service_tag,doa_number）批量更新 DOA 编号
// 首行为表头时跳过；空标签行计入 skipped，未知标签计入 not_found。
func (s *SystemService) ImportDOANumbers(ctx context.Context, actor Actor, reader io.Reader) (*DOAImportResult, error) {
	if reader == nil {
		return nil, ErrInvalidImport
	}
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	result := &DOAImportResult{NotFoundTags: make([]string, 0)}
	line := 0
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Join(ErrInvalidImport, err)
		}
		line++
		if len(record) == 0 {
			result.Skipped++
			continue
		}
		tag := normalizeServiceTag(strings.TrimPrefix(record[0], "\ufeff"))
		if line == 1 && strings.EqualFold(tag, "service_tag") {
			continue
		}
		if tag == "" || len(record) < 2 {
			result.Skipped++
			continue
		}
		if _, err := s.SetDOA(ctx, actor, tag, record[1]); err != nil {
			switch {
			case errors.Is(err, ErrSystemNotFound):
				result.NotFound++
				result.NotFoundTags = append(result.NotFoundTags, tag)
			case errors.Is(err, ErrInvalidDOA):
				result.Skipped++
			default:
				return nil, err
			}
			continue
		}
		result.Updated++
	}
	logger.Infow("system_doa_imported",
		"updated", result.Updated,
		"skipped", result.Skipped,
		"not_found", result.NotFound,
		"operator", actor.Username,
		"request_id", actor.RequestID,
	)
	return result, nil
}
