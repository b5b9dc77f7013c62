package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/palletdock/internal/logger"

	"github.com/google/uuid"
)

// Result 一次提交的结果
type Result struct {
	BatchID string
	// Blocked 发运前置校验未通过，未发出任何远程调用
	Blocked bool
	Plan    Plan
	Applied []Operation
	Failed  *StepError
	// MissingDOA 按托盘编号分组的缺失 DOA 服务标签
	MissingDOA map[string][]string
	Artifacts  []string
	// ArtifactErrors 产物生成失败不影响提交结果
	ArtifactErrors []error
	Baseline       Snapshot
	RefreshErr     error
}

// OK 全部操作成功且已刷新基线
func (r *Result) OK() bool {
	return r != nil && !r.Blocked && r.Failed == nil && r.RefreshErr == nil
}

// Count 已成功执行的某类操作数
func (r *Result) Count(kind OpKind) int {
	n := 0
	for _, op := range r.Applied {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Summary 提交摘要
func (r *Result) Summary() string {
	if r == nil {
		return ""
	}
	if r.Blocked {
		return "All Service Tags must have a DOA number."
	}
	var parts []string
	if n := r.Count(OpMove); n > 0 {
		parts = append(parts, fmt.Sprintf("Submitted %d move(s)", n))
	}
	if n := r.Count(OpSetDOA); n > 0 {
		parts = append(parts, fmt.Sprintf("Saved %d DOA number(s)", n))
	}
	if n := r.Count(OpDelete); n > 0 {
		parts = append(parts, fmt.Sprintf("Deleted %d empty pallet(s)", n))
	}
	if n := r.Count(OpRelease); n > 0 {
		parts = append(parts, fmt.Sprintf("Released %d pallet(s)", n))
	}
	locked, unlocked := 0, 0
	for _, op := range r.Applied {
		if op.Kind != OpSetLock {
			continue
		}
		if op.Locked {
			locked++
		} else {
			unlocked++
		}
	}
	if locked > 0 || unlocked > 0 {
		parts = append(parts, fmt.Sprintf("Locks: %d locked / %d unlocked", locked, unlocked))
	}
	if r.Failed != nil {
		parts = append(parts, r.Failed.Message())
	}
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, ", ")
}

// Submit 按固定顺序提交暂存变更：
// 发运前置校验 → 移动 → DOA → 删除 → 发运 → 锁定 → 刷新基线。
// 任一步失败即停止后续步骤，已成功的操作不回滚；无论成功与否最后都会重新拉取基线。
// 返回的 error 为 ErrSubmitInProgress、ErrReleaseNotReady 或 *StepError。
func (s *Session) Submit(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if !s.submitting.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	defer s.submitting.Store(false)
	draft := s.draft.Clone()
	flags := s.flags.clone()
	plan := BuildPlan(s.baseline, s.draft, s.flags)
	s.mu.Unlock()

	result := &Result{
		BatchID:    uuid.NewString(),
		Plan:       plan,
		MissingDOA: make(map[string][]string),
	}
	log := logger.SW("batch_id", result.BatchID)

	if missing := CheckReleaseReady(draft, flags); len(missing) > 0 {
		result.Blocked = true
		result.MissingDOA = missing
		s.mu.Lock()
		s.missing = copyMissing(missing)
		s.mu.Unlock()
		log.Warnw("reconcile_submit_blocked_missing_doa", "pallets", len(missing))
		return result, ErrReleaseNotReady
	}

	log.Infow("reconcile_submit_started",
		"moves", len(plan.Moves),
		"doa_updates", len(plan.DOAUpdates),
		"deletes", len(plan.Deletes),
		"releases", len(plan.Releases),
		"locks", len(plan.Locks),
	)

	artifacts := newArtifactRunner(ctx, s, draft)
	var failure error
	for _, op := range plan.Operations() {
		if err := s.apply(ctx, op); err != nil {
			stepErr := &StepError{Op: op, Err: err}
			result.Failed = stepErr
			failure = stepErr
			if op.Kind == OpRelease {
				if tags, ok := MissingDOATags(err); ok {
					result.MissingDOA[op.PalletNumber] = tags
				}
			}
			log.Warnw("reconcile_step_failed", "kind", op.Kind, "target", op.Target(), "error", err)
			break
		}
		result.Applied = append(result.Applied, op)
		switch op.Kind {
		case OpMove:
			artifacts.label(op)
		case OpRelease:
			artifacts.manifest(op)
		}
	}
	// 产物在全部变更执行完后生成，不拖慢后续的远程变更
	result.Artifacts, result.ArtifactErrors = artifacts.run()

	s.refresh(ctx, result)

	log.Infow("reconcile_submit_finished",
		"applied", len(result.Applied),
		"failed", result.Failed != nil,
		"artifacts", len(result.Artifacts),
		"artifact_errors", len(result.ArtifactErrors),
		"refreshed", result.RefreshErr == nil,
	)
	return result, failure
}

// apply 执行单个操作，成功后立即更新本地基线，避免刷新失败时重复提交已生效的变更
func (s *Session) apply(ctx context.Context, op Operation) error {
	err := s.step(ctx, func(ctx context.Context) error {
		switch op.Kind {
		case OpMove:
			return s.remote.MoveSystem(ctx, MoveRequest{
				ServiceTag:       op.ServiceTag,
				FromPalletNumber: op.FromPallet,
				ToPalletNumber:   op.ToPallet,
				ToSlot:           op.ToSlot,
			})
		case OpSetDOA:
			return s.remote.UpdateSystemDOA(ctx, op.ServiceTag, op.DOANumber)
		case OpDelete:
			return s.remote.DeletePallet(ctx, op.PalletNumber)
		case OpRelease:
			_, err := s.remote.ReleasePallet(ctx, op.PalletNumber)
			return err
		case OpSetLock:
			_, err := s.remote.SetPalletLock(ctx, op.PalletNumber, op.Locked)
			return err
		default:
			return fmt.Errorf("unknown operation %q", op.Kind)
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.commitLocked(op)
	s.mu.Unlock()
	return nil
}

// commitLocked 将已确认的操作反映到基线（必要时也反映到草稿）
func (s *Session) commitLocked(op Operation) {
	switch op.Kind {
	case OpMove:
		from := s.baseline.Find(op.FromPallet)
		to := s.baseline.Find(op.ToPallet)
		if from == nil || to == nil {
			return
		}
		idx := from.FindSlot(op.ServiceTag)
		if idx < 0 {
			return
		}
		target := -1
		if op.ToSlot != nil {
			if slot := to.Slots[*op.ToSlot]; slot == nil || slot.ServiceTag == "" {
				target = *op.ToSlot
			}
		}
		if target < 0 {
			target = to.FirstFreeSlot()
		}
		if target < 0 {
			return
		}
		to.Slots[target] = from.Slots[idx]
		from.Slots[idx] = nil
	case OpSetDOA:
		if pallet, idx := s.baseline.Locate(op.ServiceTag); pallet != nil {
			pallet.Slots[idx].DOANumber = op.DOANumber
		}
	case OpDelete, OpRelease:
		s.baseline = removePallet(s.baseline, op.PalletNumber)
		s.draft = removePallet(s.draft, op.PalletNumber)
		delete(s.flags.Deletes, op.PalletNumber)
		delete(s.flags.Releases, op.PalletNumber)
		delete(s.flags.Locks, op.PalletNumber)
		delete(s.missing, op.PalletNumber)
	case OpSetLock:
		if pallet := s.baseline.Find(op.PalletNumber); pallet != nil {
			pallet.Locked = op.Locked
		}
		if pallet := s.draft.Find(op.PalletNumber); pallet != nil {
			pallet.Locked = op.Locked
		}
		delete(s.flags.Locks, op.PalletNumber)
	}
}

// refresh 重新拉取基线并丢弃暂存标记；失败时保留草稿，基线已包含本次确认的操作
func (s *Session) refresh(ctx context.Context, result *Result) {
	var pallets Snapshot
	err := s.step(ctx, func(ctx context.Context) error {
		var err error
		pallets, err = s.remote.ListOpenPallets(ctx)
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		result.RefreshErr = err
		result.Baseline = s.baseline.Clone()
		for number, tags := range result.MissingDOA {
			s.missing[number] = append([]string(nil), tags...)
		}
		logger.Warnw("reconcile_refresh_failed", "batch_id", result.BatchID, "error", err)
		return
	}
	s.resetLocked(pallets)
	s.missing = copyMissing(result.MissingDOA)
	result.Baseline = pallets.Clone()
}

func removePallet(snapshot Snapshot, number string) Snapshot {
	out := snapshot[:0]
	for _, pallet := range snapshot {
		if pallet.Number != number {
			out = append(out, pallet)
		}
	}
	return out
}

func copyMissing(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// IsStepTimeout 是否为单步超时
func IsStepTimeout(err error) bool {
	return errors.Is(err, ErrStepTimeout)
}
