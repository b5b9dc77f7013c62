package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/palletdock/internal/constants"
)

const (
	defaultStepTimeout         = 15 * time.Second
	defaultArtifactConcurrency = 4
)

// MoveRequest 跨托盘移动请求
type MoveRequest struct {
	ServiceTag       string `json:"service_tag"`
	FromPalletNumber string `json:"from_pallet_number"`
	ToPalletNumber   string `json:"to_pallet_number"`
	ToSlot           *int   `json:"to_slot,omitempty"`
}

// Remote 托盘服务的远程接口
type Remote interface {
	ListOpenPallets(ctx context.Context) (Snapshot, error)
	GetSystem(ctx context.Context, serviceTag string) (*System, error)
	MoveSystem(ctx context.Context, req MoveRequest) error
	UpdateSystemDOA(ctx context.Context, serviceTag, doaNumber string) error
	DeletePallet(ctx context.Context, palletNumber string) error
	ReleasePallet(ctx context.Context, palletNumber string) (*Pallet, error)
	SetPalletLock(ctx context.Context, palletNumber string, locked bool) (*Pallet, error)
}

// Session 暂存编辑会话
// 基线为最近一次从服务端拉取的 open 托盘，草稿为本地工作副本；同一会话同时只允许一个提交。
type Session struct {
	remote              Remote
	sink                ArtifactSink
	stepTimeout         time.Duration
	artifactConcurrency int
	now                 func() time.Time

	submitting atomic.Bool

	mu       sync.Mutex
	baseline Snapshot
	draft    Snapshot
	flags    Flags
	missing  map[string][]string
}

// Option 会话选项
type Option func(*Session)

// WithArtifactSink 设置标签与清单输出
func WithArtifactSink(sink ArtifactSink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithStepTimeout 设置单次远程调用超时
func WithStepTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		if timeout > 0 {
			s.stepTimeout = timeout
		}
	}
}

// WithArtifactConcurrency 设置产物并发生成上限
func WithArtifactConcurrency(limit int) Option {
	return func(s *Session) {
		if limit > 0 {
			s.artifactConcurrency = limit
		}
	}
}

// NewSession 创建会话
func NewSession(remote Remote, opts ...Option) (*Session, error) {
	if remote == nil {
		return nil, errors.New("remote is nil")
	}
	s := &Session{
		remote:              remote,
		stepTimeout:         defaultStepTimeout,
		artifactConcurrency: defaultArtifactConcurrency,
		now:                 time.Now,
		flags:               NewFlags(),
		missing:             make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load 拉取 open 托盘作为新基线，丢弃全部暂存变更
func (s *Session) Load(ctx context.Context) error {
	if s.submitting.Load() {
		return ErrSubmitInProgress
	}
	var pallets Snapshot
	err := s.step(ctx, func(ctx context.Context) error {
		var err error
		pallets, err = s.remote.ListOpenPallets(ctx)
		return err
	})
	if err != nil {
		return err
	}
	s.Reset(pallets)
	return nil
}

// Reset 以给定快照重置基线与草稿
func (s *Session) Reset(baseline Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(baseline)
	s.missing = make(map[string][]string)
}

func (s *Session) resetLocked(baseline Snapshot) {
	s.baseline = baseline.Clone()
	s.draft = baseline.Clone()
	s.flags = NewFlags()
}

// Baseline 返回基线副本
func (s *Session) Baseline() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Clone()
}

// Draft 返回草稿副本
func (s *Session) Draft() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Flags 返回暂存标记副本
func (s *Session) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags.clone()
}

// MissingDOA 最近一次校验或发运失败中缺少 DOA 的服务标签，按托盘编号分组
func (s *Session) MissingDOA() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.missing))
	for k, v := range s.missing {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Plan 当前暂存变更对应的提交计划
func (s *Session) Plan() Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildPlan(s.baseline, s.draft, s.flags)
}

// HasPendingChanges 是否存在待提交变更
func (s *Session) HasPendingChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HasPendingChanges(s.baseline, s.draft, s.flags)
}

// PalletChanged 托盘是否有待提交变更
func (s *Session) PalletChanged(number string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PalletChanged(s.baseline, s.draft, s.flags, number)
}

// edit 在持有 mu 时检查提交状态；Submit 也在持有 mu 时置位，暂存编辑不会落在已克隆的草稿之后
func (s *Session) edit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting.Load() {
		return ErrSubmitInProgress
	}
	return fn()
}

// effectiveLockedLocked 已提交锁定或暂存了锁定的托盘都视为锁定
func (s *Session) effectiveLockedLocked(p *Pallet) bool {
	if p.Locked {
		return true
	}
	return s.flags.Locks[p.Number]
}

// MoveSystem 将机器移到目标托盘的指定槽位（toSlot<0 时取第一个空槽）
// 任一托盘锁定或目标槽位被占用时拒绝；移入被标记删除的托盘会清除删除标记，
// 移空被标记发运的托盘会清除发运标记。
func (s *Session) MoveSystem(serviceTag, toPallet string, toSlot int) error {
	tag := strings.ToUpper(strings.TrimSpace(serviceTag))
	return s.edit(func() error {
		from, fromIdx := s.draft.Locate(tag)
		if from == nil {
			return ErrSystemNotFound
		}
		to := s.draft.Find(strings.TrimSpace(toPallet))
		if to == nil {
			return ErrPalletNotFound
		}
		if s.effectiveLockedLocked(from) || s.effectiveLockedLocked(to) {
			return ErrPalletLocked
		}
		if toSlot < 0 {
			toSlot = to.FirstFreeSlot()
			if toSlot < 0 {
				return ErrSlotOccupied
			}
		}
		if toSlot >= constants.PalletSlotCount {
			return ErrInvalidSlot
		}
		if from.Number == to.Number && fromIdx == toSlot {
			return nil
		}
		if slot := to.Slots[toSlot]; slot != nil && slot.ServiceTag != "" {
			return ErrSlotOccupied
		}

		to.Slots[toSlot] = from.Slots[fromIdx]
		from.Slots[fromIdx] = nil
		delete(s.flags.Deletes, to.Number)
		if from.IsEmpty() {
			delete(s.flags.Releases, from.Number)
		}
		return nil
	})
}

// StageLock 暂存锁定变更，期望值与已提交状态相同时清除暂存
func (s *Session) StageLock(number string, locked bool) error {
	return s.edit(func() error {
		pallet := s.baseline.Find(strings.TrimSpace(number))
		if pallet == nil {
			return ErrPalletNotFound
		}
		if pallet.Locked == locked {
			delete(s.flags.Locks, pallet.Number)
			return nil
		}
		s.flags.Locks[pallet.Number] = locked
		return nil
	})
}

// ToggleLock 切换暂存锁定：已有暂存时清除，否则暂存与已提交状态相反的值
func (s *Session) ToggleLock(number string) error {
	return s.edit(func() error {
		pallet := s.baseline.Find(strings.TrimSpace(number))
		if pallet == nil {
			return ErrPalletNotFound
		}
		if _, staged := s.flags.Locks[pallet.Number]; staged {
			delete(s.flags.Locks, pallet.Number)
			return nil
		}
		s.flags.Locks[pallet.Number] = !pallet.Locked
		return nil
	})
}

// FlagDelete 标记或取消删除，仅未锁定的空托盘可标记
func (s *Session) FlagDelete(number string, on bool) error {
	return s.edit(func() error {
		pallet := s.draft.Find(strings.TrimSpace(number))
		if pallet == nil {
			return ErrPalletNotFound
		}
		if !on {
			delete(s.flags.Deletes, pallet.Number)
			return nil
		}
		if !pallet.IsEmpty() {
			return ErrPalletNotEmpty
		}
		// 删除先于锁定提交，已锁定的托盘即使暂存了解锁也无法在同批次删除
		if origin := s.baseline.Find(pallet.Number); origin != nil && origin.Locked {
			return ErrPalletLocked
		}
		s.flags.Deletes[pallet.Number] = true
		return nil
	})
}

// FlagRelease 标记或取消发运，空托盘不可标记
func (s *Session) FlagRelease(number string, on bool) error {
	return s.edit(func() error {
		pallet := s.draft.Find(strings.TrimSpace(number))
		if pallet == nil {
			return ErrPalletNotFound
		}
		if !on {
			delete(s.flags.Releases, pallet.Number)
			return nil
		}
		if pallet.IsEmpty() {
			return ErrPalletEmpty
		}
		s.flags.Releases[pallet.Number] = true
		return nil
	})
}

// SetDOA 暂存机器 DOA 编号；编辑会清除所在托盘的发运标记与缺失提示
// 原本没有 DOA 时不允许保存空值。
func (s *Session) SetDOA(serviceTag, doaNumber string) error {
	tag := strings.ToUpper(strings.TrimSpace(serviceTag))
	return s.edit(func() error {
		pallet, idx := s.draft.Locate(tag)
		if pallet == nil {
			return ErrSystemNotFound
		}
		delete(s.flags.Releases, pallet.Number)
		delete(s.missing, pallet.Number)

		value := NormalizeDOA(doaNumber)
		slot := pallet.Slots[idx]
		if value == "" && !slot.HasDOA() {
			return ErrDOARequired
		}
		slot.DOANumber = value
		return nil
	})
}

// step 执行一次远程调用，超出单步超时视为该步失败
func (s *Session) step(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()
	err := fn(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrStepTimeout, err)
	}
	return err
}
