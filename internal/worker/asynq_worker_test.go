package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/provider"
	"github.com/palletdock/internal/queue"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/service"
	"github.com/palletdock/internal/storage"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var workerActor = service.Actor{OperatorID: 1, Username: "dock-lead", RequestID: "req-worker"}

func setupConsumerTest(t *testing.T) (*Consumer, storage.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_consumer_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store failed: %v", err)
	}

	cfg := config.PalletConfig{Timezone: "UTC", FactoryCode: "TSS", AssignShapeOnCreate: true}
	palletRepo := repository.NewPalletRepository(db)
	systemRepo := repository.NewSystemRepository(db)
	audit := service.NewPalletAuditService(repository.NewPalletAuditLogRepository(db))
	container := &provider.Container{
		DB:              db,
		Store:           store,
		PalletRepo:      palletRepo,
		SystemRepo:      systemRepo,
		AuditService:    audit,
		PalletService:   service.NewPalletService(db, cfg, palletRepo, systemRepo, audit, nil),
		SystemService:   service.NewSystemService(db, cfg, systemRepo, palletRepo, audit),
		ArtifactService: service.NewArtifactService(cfg, palletRepo, systemRepo, store),
	}
	return NewConsumer(container), store
}

func seedPalletWithSystem(t *testing.T, c *Consumer, tag, doa string) *models.Pallet {
	t.Helper()
	ctx := context.Background()
	pallet, err := c.PalletService.Create(ctx, workerActor, service.CreatePalletInput{})
	if err != nil {
		t.Fatalf("create pallet failed: %v", err)
	}
	if _, _, err := c.SystemService.UpsertSystem(ctx, workerActor, service.UpsertSystemInput{ServiceTag: tag, PPID: "PPID-1", DOANumber: &doa}); err != nil {
		t.Fatalf("upsert system failed: %v", err)
	}
	if _, err := c.PalletService.AssignSystem(ctx, workerActor, service.AssignSystemInput{ServiceTag: tag, PalletNumber: pallet.PalletNumber}); err != nil {
		t.Fatalf("assign system failed: %v", err)
	}
	return pallet
}

func TestHandleSystemLabelsStoresLabels(t *testing.T) {
	c, store := setupConsumerTest(t)
	pallet := seedPalletWithSystem(t, c, "ABC123", "DOA-1")

	task, err := queue.NewSystemLabelsTask(queue.SystemLabelsPayload{
		PalletNumber: pallet.PalletNumber,
		ServiceTags:  []string{"ABC123"},
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := c.handleSystemLabels(context.Background(), task); err != nil {
		t.Fatalf("handle labels failed: %v", err)
	}
	ok, err := store.Exists(context.Background(), storage.LabelKey(pallet.PalletNumber, "ABC123"))
	if err != nil || !ok {
		t.Fatalf("expected label to be stored, ok=%v err=%v", ok, err)
	}
}

func TestHandlePalletManifest(t *testing.T) {
	c, store := setupConsumerTest(t)
	pallet := seedPalletWithSystem(t, c, "ABC123", "DOA-1")

	task, err := queue.NewPalletManifestTask(queue.PalletManifestPayload{PalletNumber: pallet.PalletNumber})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	// open 托盘没有清单，任务直接丢弃而不是重试
	if err := c.handlePalletManifest(context.Background(), task); err != nil {
		t.Fatalf("open pallet manifest should be skipped, got %v", err)
	}
	if ok, _ := store.Exists(context.Background(), storage.ManifestKey(pallet.PalletNumber)); ok {
		t.Fatalf("manifest must not exist before release")
	}

	if _, err := c.PalletService.Release(context.Background(), workerActor, pallet.PalletNumber); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := c.handlePalletManifest(context.Background(), task); err != nil {
		t.Fatalf("handle manifest failed: %v", err)
	}
	ok, err := store.Exists(context.Background(), storage.ManifestKey(pallet.PalletNumber))
	if err != nil || !ok {
		t.Fatalf("expected manifest to be stored, ok=%v err=%v", ok, err)
	}
}

func TestHandleTasksSkipNil(t *testing.T) {
	var c *Consumer
	if err := c.handlePalletManifest(context.Background(), nil); err != nil {
		t.Fatalf("nil consumer should be skipped, got %v", err)
	}
	if err := c.handleSystemLabels(context.Background(), nil); err != nil {
		t.Fatalf("nil consumer should be skipped, got %v", err)
	}
}

type countingRepairer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRepairer) RepairShapes(ctx context.Context, actor service.Actor) (service.ShapeRepairResult, error) {
	r.calls.Add(1)
	if actor.Username != service.SystemActor.Username {
		return service.ShapeRepairResult{}, errors.New("unexpected actor")
	}
	return service.ShapeRepairResult{Assigned: 1}, r.err
}

func TestShapeRepairLoopRunsUntilStopped(t *testing.T) {
	repairer := &countingRepairer{}
	loop, err := NewShapeRepairLoop(repairer, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new loop failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for repairer.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not tick, calls=%d", repairer.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := loop.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("start returned %v", err)
	}
}

func TestNewShapeRepairLoopValidates(t *testing.T) {
	if _, err := NewShapeRepairLoop(nil, time.Second); err == nil {
		t.Fatalf("nil repairer should fail")
	}
	if _, err := NewShapeRepairLoop(&countingRepairer{}, 0); err == nil {
		t.Fatalf("zero interval should fail")
	}
}
