package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/palletdock/internal/artifact"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/metrics"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/storage"
)

// ArtifactService 标签、发运清单与报表生成
type ArtifactService struct {
	cfg        config.PalletConfig
	palletRepo *repository.GormPalletRepository
	systemRepo *repository.GormSystemRepository
	store      storage.Store
	now        func() time.Time
}

// NewArtifactService 创建产物服务
func NewArtifactService(
	cfg config.PalletConfig,
	palletRepo *repository.GormPalletRepository,
	systemRepo *repository.GormSystemRepository,
	store storage.Store,
) *ArtifactService {
	return &ArtifactService{
		cfg:        cfg,
		palletRepo: palletRepo,
		systemRepo: systemRepo,
		store:      store,
		now:        time.Now,
	}
}

// GenerateSystemLabels 为移入托盘的机器生成标签并写入存储，返回对象键
// 机器或托盘查询失败时使用占位值，不中断整批。
func (s *ArtifactService) GenerateSystemLabels(ctx context.Context, palletNumber string, serviceTags []string) ([]string, error) {
	start := time.Now()
	keys, err := s.generateSystemLabels(ctx, palletNumber, serviceTags)
	observeArtifact(constants.ArtifactKindLabel, start, err)
	if err != nil {
		logger.Errorw("artifact_labels_failed", "pallet_number", palletNumber, "service_tags", serviceTags, "error", err)
		return nil, err
	}
	logger.Infow("artifact_labels_stored", "pallet_number", palletNumber, "count", len(keys))
	return keys, nil
}

func (s *ArtifactService) generateSystemLabels(ctx context.Context, palletNumber string, serviceTags []string) ([]string, error) {
	if s.store == nil {
		return nil, ErrArtifactNotFound
	}
	tags := make([]string, 0, len(serviceTags))
	for _, tag := range serviceTags {
		if normalized := normalizeServiceTag(tag); normalized != "" {
			tags = append(tags, normalized)
		}
	}
	if len(tags) == 0 {
		return []string{}, nil
	}

	pallet, err := s.palletRepo.GetByNumber(strings.TrimSpace(palletNumber))
	if err != nil {
		logger.Warnw("artifact_label_pallet_lookup_failed", "pallet_number", palletNumber, "error", err)
		pallet = nil
	}
	systems, err := s.systemRepo.ListByServiceTags(tags)
	if err != nil {
		logger.Warnw("artifact_label_system_lookup_failed", "service_tags", tags, "error", err)
		systems = nil
	}
	byTag := make(map[string]*models.System, len(systems))
	for i := range systems {
		byTag[systems[i].ServiceTag] = &systems[i]
	}

	keys := make([]string, 0, len(tags))
	for _, tag := range tags {
		label := BuildLabelData(tag, pallet, byTag[tag]).Normalize(s.cfg.LabelBaseURL)
		body, err := artifact.RenderLabels([]artifact.LabelData{label})
		if err != nil {
			return nil, err
		}
		key := storage.LabelKey(label.PalletNumber, tag)
		if err := s.store.Put(ctx, key, bytes.NewReader(body), artifact.ContentTypePDF); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// BuildLabelData 由托盘与机器档案组装标签内容，任一为空时留给占位值处理
func BuildLabelData(serviceTag string, pallet *models.Pallet, system *models.System) artifact.LabelData {
	label := artifact.LabelData{ServiceTag: serviceTag}
	if pallet != nil {
		label.PalletNumber = pallet.PalletNumber
		label.Shape = pallet.ShapeValue()
		label.FactoryCode = pallet.FactoryCode
	}
	if system != nil {
		label.DPN = system.DPN
		label.Config = system.Config
		label.DellCustomer = system.DellCustomer
		label.PPID = system.PPID
	}
	return label
}

// GeneratePalletManifest 为已发运托盘生成发运清单
func (s *ArtifactService) GeneratePalletManifest(ctx context.Context, palletNumber string) (string, error) {
	start := time.Now()
	key, err := s.generatePalletManifest(ctx, palletNumber)
	observeArtifact(constants.ArtifactKindManifest, start, err)
	if err != nil {
		logger.Errorw("artifact_manifest_failed", "pallet_number", palletNumber, "error", err)
		return "", err
	}
	logger.Infow("artifact_manifest_stored", "pallet_number", palletNumber, "key", key)
	return key, nil
}

func (s *ArtifactService) generatePalletManifest(ctx context.Context, palletNumber string) (string, error) {
	if s.store == nil {
		return "", ErrArtifactNotFound
	}
	pallet, err := s.palletRepo.GetByNumber(strings.TrimSpace(palletNumber))
	if err != nil {
		return "", err
	}
	if pallet == nil {
		return "", ErrPalletNotFound
	}
	if pallet.IsOpen() {
		return "", ErrArtifactNotFound
	}
	body, err := artifact.RenderManifest(BuildManifestData(pallet))
	if err != nil {
		return "", err
	}
	key := storage.ManifestKey(pallet.PalletNumber)
	if err := s.store.Put(ctx, key, bytes.NewReader(body), artifact.ContentTypePDF); err != nil {
		return "", err
	}
	return key, nil
}

// BuildManifestData 由托盘（含槽位机器）组装发运清单内容，按槽位顺序列出
func BuildManifestData(pallet *models.Pallet) artifact.ManifestData {
	data := artifact.ManifestData{
		PalletNumber: pallet.PalletNumber,
		DPN:          pallet.DPN,
		FactoryCode:  pallet.FactoryCode,
		Systems:      make([]artifact.ManifestSystem, 0, len(pallet.Slots)),
	}
	if pallet.ReleasedAt != nil {
		data.ReleasedAt = *pallet.ReleasedAt
	}
	for _, slot := range pallet.SlotArray() {
		if slot == nil {
			continue
		}
		row := artifact.ManifestSystem{}
		if slot.System != nil {
			row.ServiceTag = slot.System.ServiceTag
			row.PPID = slot.System.PPID
			row.DOANumber = slot.System.DOAValue()
		}
		data.Systems = append(data.Systems, row)
	}
	return data
}

// OpenManifest 读取发运清单，未生成时即时生成一次
func (s *ArtifactService) OpenManifest(ctx context.Context, palletNumber string) (io.ReadCloser, error) {
	if s.store == nil {
		return nil, ErrArtifactNotFound
	}
	number := strings.TrimSpace(palletNumber)
	if number == "" {
		return nil, ErrInvalidPalletNumber
	}
	key := storage.ManifestKey(number)
	reader, err := s.store.Get(ctx, key)
	if err == nil {
		return reader, nil
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		return nil, err
	}
	if _, err := s.GeneratePalletManifest(ctx, number); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, key)
}

// BuildOpenPalletReport 生成 open 托盘 XLSX 报表
func (s *ArtifactService) BuildOpenPalletReport(ctx context.Context) ([]byte, error) {
	start := time.Now()
	pallets, _, err := s.palletRepo.List(repository.PalletListFilter{
		Status:      constants.PalletStatusOpen,
		WithSystems: true,
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		observeArtifact("report", start, err)
		return nil, err
	}
	rows := make([]artifact.ReportPallet, 0, len(pallets))
	for i := range pallets {
		rows = append(rows, buildReportPallet(&pallets[i]))
	}
	body, err := artifact.BuildOpenPalletReport(rows, s.now())
	observeArtifact("report", start, err)
	if err != nil {
		logger.Errorw("artifact_report_failed", "error", err)
		return nil, err
	}
	return body, nil
}

func buildReportPallet(pallet *models.Pallet) artifact.ReportPallet {
	row := artifact.ReportPallet{
		PalletNumber: pallet.PalletNumber,
		Shape:        pallet.ShapeValue(),
		Locked:       pallet.Locked,
		FactoryCode:  pallet.FactoryCode,
		CreatedAt:    pallet.CreatedAt,
	}
	for _, slot := range pallet.SlotArray() {
		if slot == nil || slot.System == nil {
			continue
		}
		row.Slots = append(row.Slots, artifact.ReportSlot{
			SlotIndex:  slot.SlotIndex,
			ServiceTag: slot.System.ServiceTag,
			PPID:       slot.System.PPID,
			DPN:        slot.System.DPN,
			DOANumber:  slot.System.DOAValue(),
		})
	}
	return row
}

func observeArtifact(kind string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveArtifact(kind, result, time.Since(start))
}
