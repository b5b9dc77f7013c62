package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/palletdock/internal/apiclient"
	"github.com/palletdock/internal/reconcile"
)

const testPlan = `
moves:
  - service_tag: bbb222
    to_pallet: PALLET-20250601-002
    slot: 4
  - service_tag: CCC333
    to_pallet: PALLET-20250601-002
doa:
  AAA111: " DOA-1A "
deletes: [PALLET-20250601-003]
releases: [PALLET-20250601-002]
locks:
  PALLET-20250601-001: true
`

func newTestSession(t *testing.T) *reconcile.Session {
	t.Helper()
	// 仅暂存，不会发出请求
	client, err := apiclient.New(apiclient.Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	session, err := reconcile.NewSession(client)
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}

	first := reconcile.Pallet{ID: 1, Number: "PALLET-20250601-001", Status: "open"}
	first.Slots[0] = &reconcile.SlotSystem{ServiceTag: "AAA111"}
	first.Slots[1] = &reconcile.SlotSystem{ServiceTag: "BBB222", DOANumber: "DOA-2"}
	second := reconcile.Pallet{ID: 2, Number: "PALLET-20250601-002", Status: "open"}
	second.Slots[0] = &reconcile.SlotSystem{ServiceTag: "CCC333", DOANumber: "DOA-3"}
	third := reconcile.Pallet{ID: 3, Number: "PALLET-20250601-003", Status: "open"}
	session.Reset(reconcile.Snapshot{first, second, third})
	return session
}

func writePlan(t *testing.T, body string) *PlanFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write plan failed: %v", err)
	}
	plan, err := loadPlanFile(path)
	if err != nil {
		t.Fatalf("load plan failed: %v", err)
	}
	return plan
}

func TestPlanFileStage(t *testing.T) {
	session := newTestSession(t)
	if err := writePlan(t, testPlan).Stage(session); err != nil {
		t.Fatalf("stage failed: %v", err)
	}

	plan := session.Plan()
	// CCC333 已在 002 上，同托盘移动不产生远程操作
	if len(plan.Moves) != 1 || plan.Moves[0].ServiceTag != "BBB222" || *plan.Moves[0].ToSlot != 4 {
		t.Fatalf("unexpected moves %+v", plan.Moves)
	}
	if len(plan.DOAUpdates) != 1 || plan.DOAUpdates[0].DOANumber != "DOA-1A" {
		t.Fatalf("unexpected doa updates %+v", plan.DOAUpdates)
	}
	if len(plan.Deletes) != 1 || len(plan.Releases) != 1 || len(plan.Locks) != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestPlanFileStageStopsOnGuard(t *testing.T) {
	session := newTestSession(t)
	plan := writePlan(t, "deletes: [PALLET-20250601-001]\n")
	if err := plan.Stage(session); !errors.Is(err, reconcile.ErrPalletNotEmpty) {
		t.Fatalf("expected ErrPalletNotEmpty, got %v", err)
	}
}
