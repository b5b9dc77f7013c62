package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupPalletRepositoryTest(t *testing.T) (*GormPalletRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:pallet_repo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate pallet models failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewPalletRepository(db), db
}

func createTestPallet(t *testing.T, repo *GormPalletRepository, number string, shape string) *models.Pallet {
	t.Helper()
	pallet := &models.Pallet{
		PalletNumber: number,
		Status:       constants.PalletStatusOpen,
	}
	if shape != "" {
		value := shape
		pallet.Shape = &value
	}
	if err := repo.Create(pallet); err != nil {
		t.Fatalf("create pallet %s failed: %v", number, err)
	}
	return pallet
}

func createTestSystem(t *testing.T, db *gorm.DB, tag string) *models.System {
	t.Helper()
	system := &models.System{ServiceTag: tag, PPID: "PPID-" + tag}
	if err := db.Create(system).Error; err != nil {
		t.Fatalf("create system %s failed: %v", tag, err)
	}
	return system
}

func TestListNumbersWithPrefixIncludesDeleted(t *testing.T) {
	repo, _ := setupPalletRepositoryTest(t)
	first := createTestPallet(t, repo, "PALLET-20250601-001", "")
	createTestPallet(t, repo, "PALLET-20250601-002", "")
	createTestPallet(t, repo, "PALLET-20250602-001", "")

	if err := repo.Delete(first.ID); err != nil {
		t.Fatalf("delete pallet failed: %v", err)
	}

	numbers, err := repo.ListNumbersWithPrefix("PALLET-20250601-")
	if err != nil {
		t.Fatalf("list numbers failed: %v", err)
	}
	if len(numbers) != 2 {
		t.Fatalf("expected deleted numbers to stay reserved, got %v", numbers)
	}

	reloaded, err := repo.GetByNumber("PALLET-20250601-001")
	if err != nil {
		t.Fatalf("get deleted pallet failed: %v", err)
	}
	if reloaded != nil {
		t.Fatalf("soft deleted pallet should not be visible")
	}
}

func TestPalletNumberUniqueViolationDetected(t *testing.T) {
	repo, _ := setupPalletRepositoryTest(t)
	createTestPallet(t, repo, "PALLET-20250601-001", "")

	err := repo.Create(&models.Pallet{PalletNumber: "PALLET-20250601-001", Status: constants.PalletStatusOpen})
	if err == nil {
		t.Fatalf("expected duplicate pallet number to fail")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestOpenShapeIndexRejectsDuplicate(t *testing.T) {
	repo, _ := setupPalletRepositoryTest(t)
	createTestPallet(t, repo, "PALLET-20250601-001", "star")

	shape := "star"
	err := repo.Create(&models.Pallet{PalletNumber: "PALLET-20250601-002", Status: constants.PalletStatusOpen, Shape: &shape})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected duplicate open shape to be rejected, got %v", err)
	}

	released := &models.Pallet{PalletNumber: "PALLET-20250601-003", Status: constants.PalletStatusReleased, Shape: &shape}
	if err := repo.Create(released); err != nil {
		t.Fatalf("released pallet should not collide with open shape: %v", err)
	}
}

func TestListOpenShapesAndWithoutShapeOrder(t *testing.T) {
	repo, db := setupPalletRepositoryTest(t)
	older := createTestPallet(t, repo, "PALLET-20250601-001", "")
	newer := createTestPallet(t, repo, "PALLET-20250601-002", "")
	createTestPallet(t, repo, "PALLET-20250601-003", "circle")
	if err := db.Model(&models.Pallet{}).Where("id = ?", older.ID).Update("created_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate pallet failed: %v", err)
	}

	shapes, err := repo.ListOpenShapes()
	if err != nil {
		t.Fatalf("list open shapes failed: %v", err)
	}
	if len(shapes) != 1 || shapes[0] != "circle" {
		t.Fatalf("unexpected open shapes: %v", shapes)
	}

	pending, err := repo.ListOpenWithoutShape()
	if err != nil {
		t.Fatalf("list shapeless failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != older.ID || pending[1].ID != newer.ID {
		t.Fatalf("expected oldest-first order, got %+v", pending)
	}
}

func TestMarkReleasedFreesShape(t *testing.T) {
	repo, _ := setupPalletRepositoryTest(t)
	pallet := createTestPallet(t, repo, "PALLET-20250601-001", "hexagon")

	now := time.Now()
	if err := repo.MarkReleased(pallet.ID, 7, now); err != nil {
		t.Fatalf("mark released failed: %v", err)
	}
	if err := repo.MarkReleased(pallet.ID, 7, now); err == nil {
		t.Fatalf("second release should not match an open pallet")
	}

	reloaded, err := repo.GetByNumber(pallet.PalletNumber)
	if err != nil || reloaded == nil {
		t.Fatalf("reload pallet failed: %v", err)
	}
	if reloaded.Status != constants.PalletStatusReleased || reloaded.Shape != nil || reloaded.ReleasedAt == nil {
		t.Fatalf("unexpected released pallet: %+v", reloaded)
	}
	if reloaded.ReleasedBy == nil || *reloaded.ReleasedBy != 7 {
		t.Fatalf("released_by not recorded: %+v", reloaded.ReleasedBy)
	}
}

func TestMoveSlotKeepsSingleOccupancy(t *testing.T) {
	repo, db := setupPalletRepositoryTest(t)
	source := createTestPallet(t, repo, "PALLET-20250601-001", "")
	target := createTestPallet(t, repo, "PALLET-20250601-002", "")
	system := createTestSystem(t, db, "ABC123")

	slot := &models.PalletSlot{PalletID: source.ID, SlotIndex: 0, SystemID: system.ID}
	if err := repo.CreateSlot(slot); err != nil {
		t.Fatalf("create slot failed: %v", err)
	}
	if err := repo.CreateSlot(&models.PalletSlot{PalletID: target.ID, SlotIndex: 5, SystemID: system.ID}); !IsUniqueViolation(err) {
		t.Fatalf("second slot for same system should violate uniqueness, got %v", err)
	}

	if err := repo.MoveSlot(slot.ID, target.ID, 4); err != nil {
		t.Fatalf("move slot failed: %v", err)
	}

	sourceCount, _ := repo.CountSlots(source.ID)
	targetSlots, err := repo.ListSlots(target.ID)
	if err != nil {
		t.Fatalf("list target slots failed: %v", err)
	}
	if sourceCount != 0 || len(targetSlots) != 1 || targetSlots[0].SlotIndex != 4 {
		t.Fatalf("unexpected slots after move: source=%d target=%+v", sourceCount, targetSlots)
	}
	if targetSlots[0].System == nil || targetSlots[0].System.ServiceTag != "ABC123" {
		t.Fatalf("expected system preloaded on slot")
	}

	occupied, err := repo.GetSlotAt(target.ID, 4)
	if err != nil || occupied == nil {
		t.Fatalf("expected slot 4 occupied, err=%v", err)
	}
	free, err := repo.GetSlotAt(target.ID, 3)
	if err != nil || free != nil {
		t.Fatalf("expected slot 3 free, err=%v", err)
	}
}

func TestListPalletsSearchByServiceTag(t *testing.T) {
	repo, db := setupPalletRepositoryTest(t)
	first := createTestPallet(t, repo, "PALLET-20250601-001", "star")
	createTestPallet(t, repo, "PALLET-20250601-002", "circle")
	system := createTestSystem(t, db, "XYZ789")
	if err := repo.CreateSlot(&models.PalletSlot{PalletID: first.ID, SlotIndex: 2, SystemID: system.ID}); err != nil {
		t.Fatalf("create slot failed: %v", err)
	}

	pallets, total, err := repo.List(PalletListFilter{Search: "XYZ", WithSystems: true, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list pallets failed: %v", err)
	}
	if total != 1 || len(pallets) != 1 || pallets[0].ID != first.ID {
		t.Fatalf("expected search by service tag to hit first pallet, total=%d pallets=%+v", total, pallets)
	}
	slots := pallets[0].SlotArray()
	if slots[2] == nil || slots[2].System == nil || slots[2].System.ServiceTag != "XYZ789" {
		t.Fatalf("expected slot 2 populated, got %+v", slots)
	}

	locked := false
	_, total, err = repo.List(PalletListFilter{Status: constants.PalletStatusOpen, Locked: &locked})
	if err != nil || total != 2 {
		t.Fatalf("expected two unlocked open pallets, total=%d err=%v", total, err)
	}
}

func TestClearShapeOnClosed(t *testing.T) {
	repo, db := setupPalletRepositoryTest(t)
	pallet := createTestPallet(t, repo, "PALLET-20250601-001", "")
	if err := db.Model(&models.Pallet{}).Where("id = ?", pallet.ID).Updates(map[string]interface{}{
		"status": constants.PalletStatusReleased,
		"shape":  "diamond",
	}).Error; err != nil {
		t.Fatalf("prepare stale shape failed: %v", err)
	}

	cleared, err := repo.ClearShapeOnClosed()
	if err != nil {
		t.Fatalf("clear shapes failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared shape, got %d", cleared)
	}
}

func TestWithAllocationLockSerializesScope(t *testing.T) {
	_, db := setupPalletRepositoryTest(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithAllocationLock(context.Background(), db, "pallet_number:test", func(tx *gorm.DB) error {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("allocation lock failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if overlap {
		t.Fatalf("allocation lock allowed concurrent holders")
	}
}

func TestWithAllocationLockRollsBackOnError(t *testing.T) {
	repo, db := setupPalletRepositoryTest(t)
	sentinel := fmt.Errorf("boom")
	err := WithAllocationLock(context.Background(), db, "pallet_number:rollback", func(tx *gorm.DB) error {
		if err := repo.WithTx(tx).Create(&models.Pallet{PalletNumber: "PALLET-20250601-009", Status: constants.PalletStatusOpen}); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	numbers, _ := repo.ListNumbersWithPrefix("PALLET-20250601-")
	if len(numbers) != 0 {
		t.Fatalf("expected rollback, got %v", numbers)
	}
}

func TestWithAllocationLocksMultipleScopes(t *testing.T) {
	repo, db := setupPalletRepositoryTest(t)
	scopes := []string{"pallet_number:20250601", "pallet_shape"}
	err := WithAllocationLocks(context.Background(), db, scopes, func(tx *gorm.DB) error {
		return repo.WithTx(tx).Create(&models.Pallet{PalletNumber: "PALLET-20250601-001", Status: constants.PalletStatusOpen})
	})
	if err != nil {
		t.Fatalf("multi scope lock failed: %v", err)
	}
	pallets, err := repo.ListByNumbers([]string{"PALLET-20250601-001", "PALLET-20250601-404"})
	if err != nil || len(pallets) != 1 {
		t.Fatalf("expected one pallet by number, got %d err=%v", len(pallets), err)
	}
	found, err := repo.GetByID(pallets[0].ID)
	if err != nil || found == nil || found.PalletNumber != "PALLET-20250601-001" {
		t.Fatalf("get by id mismatch: %+v err=%v", found, err)
	}
}
