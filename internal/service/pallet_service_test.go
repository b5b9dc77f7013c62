package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type palletTestEnv struct {
	db      *gorm.DB
	pallets *PalletService
	systems *SystemService
	audit   *PalletAuditService
}

var testActor = Actor{OperatorID: 1, Username: "dock-lead", RequestID: "req-test"}

func setupPalletServiceTest(t *testing.T, assignShape bool) *palletTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:pallet_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	cfg := config.PalletConfig{Timezone: "UTC", FactoryCode: "TSS", AssignShapeOnCreate: assignShape}
	palletRepo := repository.NewPalletRepository(db)
	systemRepo := repository.NewSystemRepository(db)
	audit := NewPalletAuditService(repository.NewPalletAuditLogRepository(db))
	pallets := NewPalletService(db, cfg, palletRepo, systemRepo, audit, nil)
	pallets.SetClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	systems := NewSystemService(db, cfg, systemRepo, palletRepo, audit)
	return &palletTestEnv{db: db, pallets: pallets, systems: systems, audit: audit}
}

func (e *palletTestEnv) createPallet(t *testing.T) *models.Pallet {
	t.Helper()
	pallet, err := e.pallets.Create(context.Background(), testActor, CreatePalletInput{})
	if err != nil {
		t.Fatalf("create pallet failed: %v", err)
	}
	return pallet
}

func (e *palletTestEnv) createSystem(t *testing.T, tag string, doa string) *models.System {
	t.Helper()
	input := UpsertSystemInput{ServiceTag: tag, PPID: "PPID-" + tag, DPN: "DPN-1"}
	if doa != "" {
		input.DOANumber = &doa
	}
	system, _, err := e.systems.UpsertSystem(context.Background(), testActor, input)
	if err != nil {
		t.Fatalf("upsert system %s failed: %v", tag, err)
	}
	return system
}

func (e *palletTestEnv) assign(t *testing.T, tag, number string) {
	t.Helper()
	if _, err := e.pallets.AssignSystem(context.Background(), testActor, AssignSystemInput{ServiceTag: tag, PalletNumber: number}); err != nil {
		t.Fatalf("assign %s to %s failed: %v", tag, number, err)
	}
}

func (e *palletTestEnv) slotTags(t *testing.T, number string) []string {
	t.Helper()
	pallet, err := e.pallets.GetPallet(number)
	if err != nil {
		t.Fatalf("get pallet %s failed: %v", number, err)
	}
	tags := make([]string, 0)
	for _, slot := range pallet.SlotArray() {
		if slot != nil && slot.System != nil {
			tags = append(tags, slot.System.ServiceTag)
		}
	}
	return tags
}

func TestCreatePalletSequentialNumbers(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	first := env.createPallet(t)
	second := env.createPallet(t)
	if first.PalletNumber != "PALLET-20250601-001" {
		t.Fatalf("want PALLET-20250601-001 got %s", first.PalletNumber)
	}
	if second.PalletNumber != "PALLET-20250601-002" {
		t.Fatalf("want PALLET-20250601-002 got %s", second.PalletNumber)
	}
	if !first.IsOpen() || first.Locked || first.FactoryCode != "TSS" {
		t.Fatalf("unexpected initial pallet state %+v", first)
	}
	if first.ShapeValue() != "star" || second.ShapeValue() != "triangle_up" {
		t.Fatalf("unexpected shapes %s %s", first.ShapeValue(), second.ShapeValue())
	}
}

func TestCreatePalletNumberNotReusedAfterDelete(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	first := env.createPallet(t)
	if err := env.pallets.DeletePallet(context.Background(), testActor, first.PalletNumber); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	next := env.createPallet(t)
	if next.PalletNumber != "PALLET-20250601-002" {
		t.Fatalf("deleted number must not be reused, got %s", next.PalletNumber)
	}
}

func TestCreatePalletConcurrentDistinctNumbers(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	const n = 12
	var wg sync.WaitGroup
	results := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pallet, err := env.pallets.Create(context.Background(), testActor, CreatePalletInput{})
			if err != nil {
				errs <- err
				return
			}
			results <- pallet.PalletNumber + "|" + pallet.ShapeValue()
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent create failed: %v", err)
	}

	pattern := regexp.MustCompile(`^PALLET-20250601-\d{3,}$`)
	numbers := map[string]bool{}
	shapes := map[string]bool{}
	shapeless := 0
	for item := range results {
		parts := strings.SplitN(item, "|", 2)
		if !pattern.MatchString(parts[0]) {
			t.Fatalf("unexpected pallet number format %s", parts[0])
		}
		if numbers[parts[0]] {
			t.Fatalf("duplicate pallet number %s", parts[0])
		}
		numbers[parts[0]] = true
		if parts[1] == "" {
			shapeless++
			continue
		}
		if shapes[parts[1]] {
			t.Fatalf("duplicate shape %s among open pallets", parts[1])
		}
		shapes[parts[1]] = true
	}
	if len(numbers) != n {
		t.Fatalf("expected %d distinct numbers got %d", n, len(numbers))
	}
	if len(shapes) != len(PalletShapes) || shapeless != n-len(PalletShapes) {
		t.Fatalf("expected 10 shapes and %d shapeless, got %d and %d", n-len(PalletShapes), len(shapes), shapeless)
	}
}

func TestShapeFreedOnReleaseAndDelete(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	created := make([]*models.Pallet, 0, 10)
	for i := 0; i < 10; i++ {
		created = append(created, env.createPallet(t))
	}
	eleventh := env.createPallet(t)
	if eleventh.Shape != nil {
		t.Fatalf("11th open pallet should have no shape, got %s", eleventh.ShapeValue())
	}

	freed := created[3].ShapeValue()
	if err := env.pallets.DeletePallet(context.Background(), testActor, created[3].PalletNumber); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	next := env.createPallet(t)
	if next.ShapeValue() != freed {
		t.Fatalf("expected freed shape %s, got %s", freed, next.ShapeValue())
	}

	releasedShape := created[0].ShapeValue()
	if _, err := env.pallets.Release(context.Background(), testActor, created[0].PalletNumber); err != nil {
		t.Fatalf("release empty pallet failed: %v", err)
	}
	result, err := env.pallets.RepairShapes(context.Background(), testActor)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if result.Assigned != 1 {
		t.Fatalf("expected repair to assign the freed shape, got %+v", result)
	}
	reloaded, _ := env.pallets.GetPallet(eleventh.PalletNumber)
	if reloaded.ShapeValue() != releasedShape {
		t.Fatalf("oldest shapeless pallet should get %s, got %s", releasedShape, reloaded.ShapeValue())
	}
}

func TestRepairShapesIdempotentAndOldestFirst(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	first := env.createPallet(t)
	second := env.createPallet(t)

	result, err := env.pallets.RepairShapes(context.Background(), testActor)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if result.Assigned != 2 {
		t.Fatalf("expected 2 assignments got %+v", result)
	}
	again, err := env.pallets.RepairShapes(context.Background(), testActor)
	if err != nil {
		t.Fatalf("second repair failed: %v", err)
	}
	if again.Changed() {
		t.Fatalf("second repair should be a no-op, got %+v", again)
	}
	p1, _ := env.pallets.GetPallet(first.PalletNumber)
	p2, _ := env.pallets.GetPallet(second.PalletNumber)
	if p1.ShapeValue() != "star" || p2.ShapeValue() != "triangle_up" {
		t.Fatalf("unexpected repair order %s %s", p1.ShapeValue(), p2.ShapeValue())
	}
}

func TestMoveSystemBetweenPallets(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	a := env.createPallet(t)
	b := env.createPallet(t)
	env.createSystem(t, "ABC123", "")
	env.assign(t, "ABC123", a.PalletNumber)

	placement, err := env.pallets.MoveSystem(context.Background(), testActor, MoveSystemInput{
		ServiceTag:       "ABC123",
		FromPalletNumber: a.PalletNumber,
		ToPalletNumber:   b.PalletNumber,
	})
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if placement.SlotIndex != 0 || placement.PalletNumber != b.PalletNumber {
		t.Fatalf("unexpected placement %+v", placement)
	}
	if tags := env.slotTags(t, a.PalletNumber); len(tags) != 0 {
		t.Fatalf("source should be empty, got %v", tags)
	}
	if tags := env.slotTags(t, b.PalletNumber); len(tags) != 1 || tags[0] != "ABC123" {
		t.Fatalf("destination should hold ABC123, got %v", tags)
	}

	_, err = env.pallets.MoveSystem(context.Background(), testActor, MoveSystemInput{
		ServiceTag:       "ABC123",
		FromPalletNumber: a.PalletNumber,
		ToPalletNumber:   b.PalletNumber,
	})
	if !errors.Is(err, ErrSystemNotInPallet) || !errors.Is(err, ErrConflict) {
		t.Fatalf("retrying the move should conflict, got %v", err)
	}
}

func TestMoveSystemToOccupiedSlotConflicts(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	a := env.createPallet(t)
	b := env.createPallet(t)
	env.createSystem(t, "AAA111", "")
	env.createSystem(t, "BBB222", "")
	env.assign(t, "AAA111", a.PalletNumber)
	env.assign(t, "BBB222", b.PalletNumber)

	slot := 0
	_, err := env.pallets.MoveSystem(context.Background(), testActor, MoveSystemInput{
		ServiceTag:       "AAA111",
		FromPalletNumber: a.PalletNumber,
		ToPalletNumber:   b.PalletNumber,
		ToSlot:           &slot,
	})
	if !errors.Is(err, ErrSlotOccupied) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected slot occupied conflict, got %v", err)
	}
	if tags := env.slotTags(t, a.PalletNumber); len(tags) != 1 {
		t.Fatalf("source must be unchanged, got %v", tags)
	}
	if tags := env.slotTags(t, b.PalletNumber); len(tags) != 1 || tags[0] != "BBB222" {
		t.Fatalf("destination must be unchanged, got %v", tags)
	}
}

func TestMoveSystemLockedPalletConflicts(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	a := env.createPallet(t)
	b := env.createPallet(t)
	env.createSystem(t, "ABC123", "")
	env.assign(t, "ABC123", a.PalletNumber)

	for _, target := range []string{a.PalletNumber, b.PalletNumber} {
		if _, err := env.pallets.SetLock(context.Background(), testActor, target, true); err != nil {
			t.Fatalf("lock failed: %v", err)
		}
		_, err := env.pallets.MoveSystem(context.Background(), testActor, MoveSystemInput{
			ServiceTag:       "ABC123",
			FromPalletNumber: a.PalletNumber,
			ToPalletNumber:   b.PalletNumber,
		})
		if !errors.Is(err, ErrPalletLocked) {
			t.Fatalf("expected locked conflict when %s locked, got %v", target, err)
		}
		if _, err := env.pallets.SetLock(context.Background(), testActor, target, false); err != nil {
			t.Fatalf("unlock failed: %v", err)
		}
	}
	if tags := env.slotTags(t, a.PalletNumber); len(tags) != 1 {
		t.Fatalf("locked move must not change slots, got %v", tags)
	}
}

func TestMoveSystemFullDestination(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	a := env.createPallet(t)
	b := env.createPallet(t)
	for i := 0; i < constants.PalletSlotCount; i++ {
		tag := fmt.Sprintf("FULL%02d", i)
		env.createSystem(t, tag, "")
		env.assign(t, tag, b.PalletNumber)
	}
	env.createSystem(t, "EXTRA1", "")
	env.assign(t, "EXTRA1", a.PalletNumber)

	_, err := env.pallets.MoveSystem(context.Background(), testActor, MoveSystemInput{
		ServiceTag:       "EXTRA1",
		FromPalletNumber: a.PalletNumber,
		ToPalletNumber:   b.PalletNumber,
	})
	if !errors.Is(err, ErrPalletFull) {
		t.Fatalf("expected pallet full, got %v", err)
	}
	if _, err := env.pallets.AssignSystem(context.Background(), testActor, AssignSystemInput{ServiceTag: "EXTRA1", PalletNumber: b.PalletNumber}); !errors.Is(err, ErrSystemAlreadyOnPallet) {
		t.Fatalf("expected already on pallet, got %v", err)
	}
}

func TestSetLockIdempotent(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	pallet := env.createPallet(t)
	for i := 0; i < 2; i++ {
		locked, err := env.pallets.SetLock(context.Background(), testActor, pallet.PalletNumber, true)
		if err != nil || !locked.Locked {
			t.Fatalf("lock attempt %d failed: %+v err=%v", i, locked, err)
		}
	}
	logs, total, err := env.audit.List(repository.AuditLogListFilter{Action: constants.AuditActionLock})
	if err != nil || total != 1 || len(logs) != 1 {
		t.Fatalf("idempotent lock should audit once, total=%d err=%v", total, err)
	}
	if _, err := env.pallets.SetLock(context.Background(), testActor, "PALLET-20250601-404", true); !errors.Is(err, ErrPalletNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePalletRequiresEmpty(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	pallet := env.createPallet(t)
	env.createSystem(t, "ABC123", "")
	env.assign(t, "ABC123", pallet.PalletNumber)

	err := env.pallets.DeletePallet(context.Background(), testActor, pallet.PalletNumber)
	if !errors.Is(err, ErrPalletNotEmpty) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected not empty conflict, got %v", err)
	}
	if tags := env.slotTags(t, pallet.PalletNumber); len(tags) != 1 {
		t.Fatalf("pallet must be unchanged, got %v", tags)
	}

	empty := env.createPallet(t)
	if _, err := env.pallets.SetLock(context.Background(), testActor, empty.PalletNumber, true); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if err := env.pallets.DeletePallet(context.Background(), testActor, empty.PalletNumber); !errors.Is(err, ErrPalletLocked) {
		t.Fatalf("locked pallet delete should conflict, got %v", err)
	}
}

func TestReleaseRequiresDOAOnEverySlot(t *testing.T) {
	env := setupPalletServiceTest(t, true)
	pallet := env.createPallet(t)
	env.createSystem(t, "HASDOA", "DOA-0001")
	env.createSystem(t, "NODOA1", "")
	env.assign(t, "HASDOA", pallet.PalletNumber)
	env.assign(t, "NODOA1", pallet.PalletNumber)

	_, err := env.pallets.Release(context.Background(), testActor, pallet.PalletNumber)
	var missing *MissingDOAError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingDOAError, got %v", err)
	}
	if !errors.Is(err, ErrReleasePrecondition) || !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("missing doa should match precondition categories")
	}
	if len(missing.ServiceTags) != 1 || missing.ServiceTags[0] != "NODOA1" {
		t.Fatalf("expected exactly NODOA1 missing, got %v", missing.ServiceTags)
	}
	if err.Error() != "missing DOA number for NODOA1" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	still, _ := env.pallets.GetPallet(pallet.PalletNumber)
	if !still.IsOpen() {
		t.Fatalf("pallet must remain open after failed release")
	}

	if _, err := env.systems.SetDOA(context.Background(), testActor, "nodoa1", "  DOA-0002  "); err != nil {
		t.Fatalf("set doa failed: %v", err)
	}
	released, err := env.pallets.Release(context.Background(), testActor, pallet.PalletNumber)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released.Status != constants.PalletStatusReleased || released.ReleasedAt == nil || released.Shape != nil {
		t.Fatalf("unexpected released pallet %+v", released)
	}

	if _, err := env.pallets.Release(context.Background(), testActor, pallet.PalletNumber); !errors.Is(err, ErrPalletNotOpen) {
		t.Fatalf("second release should fail with not open, got %v", err)
	}
	if _, err := env.pallets.SetLock(context.Background(), testActor, pallet.PalletNumber, true); !errors.Is(err, ErrPalletNotOpen) {
		t.Fatalf("lock on released pallet should fail, got %v", err)
	}

	other := env.createPallet(t)
	_, err = env.pallets.AssignSystem(context.Background(), testActor, AssignSystemInput{ServiceTag: "HASDOA", PalletNumber: other.PalletNumber})
	if !errors.Is(err, ErrSystemShipped) {
		t.Fatalf("shipped system cannot be re-palletised, got %v", err)
	}
}

func TestSetDOANormalizesAndClears(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	env.createSystem(t, "ABC123", "")

	system, err := env.systems.SetDOA(context.Background(), testActor, "ABC123", "  DOA-12345678901234567890-EXTRA ")
	if err != nil {
		t.Fatalf("set doa failed: %v", err)
	}
	if system.DOAValue() != "DOA-1234567890123456" {
		t.Fatalf("expected truncated doa, got %q", system.DOAValue())
	}
	cleared, err := env.systems.SetDOA(context.Background(), testActor, "ABC123", "   ")
	if err != nil {
		t.Fatalf("clear doa failed: %v", err)
	}
	if cleared.DOANumber != nil {
		t.Fatalf("blank doa should clear, got %q", cleared.DOAValue())
	}
	if _, err := env.systems.SetDOA(context.Background(), testActor, "MISSING", "DOA"); !errors.Is(err, ErrSystemNotFound) {
		t.Fatalf("expected system not found, got %v", err)
	}
}

func TestSetDOAAllowedOnLockedPallet(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	pallet := env.createPallet(t)
	env.createSystem(t, "ABC123", "")
	env.assign(t, "ABC123", pallet.PalletNumber)
	if _, err := env.pallets.SetLock(context.Background(), testActor, pallet.PalletNumber, true); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if _, err := env.systems.SetDOA(context.Background(), testActor, "ABC123", "DOA-9"); err != nil {
		t.Fatalf("doa on locked pallet should be allowed: %v", err)
	}
	logs, _, err := env.audit.List(repository.AuditLogListFilter{Action: constants.AuditActionSetDOA})
	if err != nil || len(logs) != 1 || logs[0].PalletNumber != pallet.PalletNumber {
		t.Fatalf("expected set_doa audit with pallet number, got %+v err=%v", logs, err)
	}
}

func TestImportDOANumbers(t *testing.T) {
	env := setupPalletServiceTest(t, false)
	env.createSystem(t, "ABC123", "")
	env.createSystem(t, "XYZ789", "")

	csvBody := "service_tag,doa_number\nABC123,DOA-1\nxyz789, DOA-2 \nUNKNOWN,DOA-3\n,DOA-4\n"
	result, err := env.systems.ImportDOANumbers(context.Background(), testActor, strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Updated != 2 || result.NotFound != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected import result %+v", result)
	}
	system, err := env.systems.GetSystem(context.Background(), "XYZ789")
	if err != nil || system.DOAValue() != "DOA-2" {
		t.Fatalf("expected DOA-2, got %+v err=%v", system, err)
	}
}
