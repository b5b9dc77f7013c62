package reconcile

import (
	"sort"
)

// OpKind 远程操作类型
type OpKind string

const (
	OpMove    OpKind = "move"
	OpSetDOA  OpKind = "set_doa"
	OpDelete  OpKind = "delete"
	OpRelease OpKind = "release"
	OpSetLock OpKind = "set_lock"
)

// Operation 一次远程调用
// Move 使用 ServiceTag/FromPallet/ToPallet/ToSlot；SetDOA 使用 ServiceTag/DOANumber；
// Delete、Release 使用 PalletNumber；SetLock 使用 PalletNumber/Locked。
type Operation struct {
	Kind         OpKind `json:"kind"`
	ServiceTag   string `json:"service_tag,omitempty"`
	FromPallet   string `json:"from_pallet_number,omitempty"`
	ToPallet     string `json:"to_pallet_number,omitempty"`
	ToSlot       *int   `json:"to_slot,omitempty"`
	PalletNumber string `json:"pallet_number,omitempty"`
	Locked       bool   `json:"locked,omitempty"`
	DOANumber    string `json:"doa_number,omitempty"`
}

// Target 操作对象，用于日志与错误提示
func (o Operation) Target() string {
	switch o.Kind {
	case OpMove, OpSetDOA:
		return o.ServiceTag
	default:
		return o.PalletNumber
	}
}

// Flags 与槽位无关的暂存标记，均以托盘编号为键
type Flags struct {
	Locks    map[string]bool
	Deletes  map[string]bool
	Releases map[string]bool
}

// NewFlags 创建空标记集
func NewFlags() Flags {
	return Flags{
		Locks:    make(map[string]bool),
		Deletes:  make(map[string]bool),
		Releases: make(map[string]bool),
	}
}

func (f Flags) clone() Flags {
	out := NewFlags()
	for k, v := range f.Locks {
		out.Locks[k] = v
	}
	for k, v := range f.Deletes {
		out.Deletes[k] = v
	}
	for k, v := range f.Releases {
		out.Releases[k] = v
	}
	return out
}

// Plan 按提交顺序分组的操作
type Plan struct {
	Moves      []Operation
	DOAUpdates []Operation
	Deletes    []Operation
	Releases   []Operation
	Locks      []Operation
}

// Operations 按提交顺序展开
func (p Plan) Operations() []Operation {
	out := make([]Operation, 0, len(p.Moves)+len(p.DOAUpdates)+len(p.Deletes)+len(p.Releases)+len(p.Locks))
	out = append(out, p.Moves...)
	out = append(out, p.DOAUpdates...)
	out = append(out, p.Deletes...)
	out = append(out, p.Releases...)
	out = append(out, p.Locks...)
	return out
}

// Empty 是否没有任何操作
func (p Plan) Empty() bool {
	return len(p.Moves)+len(p.DOAUpdates)+len(p.Deletes)+len(p.Releases)+len(p.Locks) == 0
}

// Diff 比较基线与草稿，得出槽位移动与 DOA 变更
// 移动按基线托盘顺序、槽位顺序产生；目标槽位仍被后续要移走的机器占用时顺延到其腾空之后。
// 仅托盘内换槽不产生移动。DOA 变更排在移动之后。
func Diff(baseline, draft Snapshot) []Operation {
	moves := diffMoves(baseline, draft)
	return append(moves, diffDOA(baseline, draft)...)
}

func diffMoves(baseline, draft Snapshot) []Operation {
	var moves []Operation
	for _, origin := range baseline {
		for _, slot := range origin.Slots {
			if slot == nil || slot.ServiceTag == "" {
				continue
			}
			current, idx := draft.Locate(slot.ServiceTag)
			if current == nil || current.Number == origin.Number {
				continue
			}
			toSlot := idx
			moves = append(moves, Operation{
				Kind:       OpMove,
				ServiceTag: slot.ServiceTag,
				FromPallet: origin.Number,
				ToPallet:   current.Number,
				ToSlot:     &toSlot,
			})
		}
	}
	return orderMoves(baseline, moves)
}

type slotKey struct {
	pallet string
	slot   int
}

// orderMoves 模拟逐条执行，优先执行目标槽位已空闲的移动
// 目标槽位始终无法腾空（互换成环或被托盘内换槽的机器占用）的移动放到最后，
// 且不指定槽位，由服务端选择第一个空槽。
func orderMoves(baseline Snapshot, moves []Operation) []Operation {
	if len(moves) == 0 {
		return moves
	}
	occupied := make(map[slotKey]string)
	for _, pallet := range baseline {
		for idx, slot := range pallet.Slots {
			if slot != nil && slot.ServiceTag != "" {
				occupied[slotKey{pallet.Number, idx}] = slot.ServiceTag
			}
		}
	}

	ordered := make([]Operation, 0, len(moves))
	pending := append([]Operation(nil), moves...)
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, move := range pending {
			target := slotKey{move.ToPallet, *move.ToSlot}
			if _, busy := occupied[target]; busy {
				rest = append(rest, move)
				continue
			}
			for key, tag := range occupied {
				if tag == move.ServiceTag {
					delete(occupied, key)
					break
				}
			}
			occupied[target] = move.ServiceTag
			ordered = append(ordered, move)
			progressed = true
		}
		pending = rest
		if !progressed {
			for _, move := range pending {
				move.ToSlot = nil
				ordered = append(ordered, move)
			}
			break
		}
	}
	return ordered
}

func diffDOA(baseline, draft Snapshot) []Operation {
	before := make(map[string]string)
	for _, pallet := range baseline {
		for _, slot := range pallet.Slots {
			if slot != nil && slot.ServiceTag != "" {
				before[slot.ServiceTag] = NormalizeDOA(slot.DOANumber)
			}
		}
	}
	var ops []Operation
	for _, pallet := range draft {
		for _, slot := range pallet.Slots {
			if slot == nil || slot.ServiceTag == "" {
				continue
			}
			previous, known := before[slot.ServiceTag]
			value := NormalizeDOA(slot.DOANumber)
			if !known || previous == value {
				continue
			}
			ops = append(ops, Operation{Kind: OpSetDOA, ServiceTag: slot.ServiceTag, DOANumber: value})
		}
	}
	return ops
}

// BuildPlan 生成完整提交计划
// 删除只针对草稿中为空的托盘；锁定只针对期望值与基线不同、且不在本批次删除或发运的托盘。
func BuildPlan(baseline, draft Snapshot, flags Flags) Plan {
	plan := Plan{}
	for _, op := range Diff(baseline, draft) {
		if op.Kind == OpMove {
			plan.Moves = append(plan.Moves, op)
		} else {
			plan.DOAUpdates = append(plan.DOAUpdates, op)
		}
	}
	for i := range draft {
		pallet := &draft[i]
		if flags.Deletes[pallet.Number] && pallet.IsEmpty() {
			plan.Deletes = append(plan.Deletes, Operation{Kind: OpDelete, PalletNumber: pallet.Number})
		}
	}
	for i := range draft {
		pallet := &draft[i]
		if flags.Releases[pallet.Number] && !flags.Deletes[pallet.Number] {
			plan.Releases = append(plan.Releases, Operation{Kind: OpRelease, PalletNumber: pallet.Number})
		}
	}
	closing := make(map[string]bool, len(plan.Deletes)+len(plan.Releases))
	for _, op := range append(append([]Operation(nil), plan.Deletes...), plan.Releases...) {
		closing[op.PalletNumber] = true
	}
	for i := range draft {
		pallet := &draft[i]
		desired, staged := flags.Locks[pallet.Number]
		// 同批次删除或发运的托盘不再接受锁定
		if !staged || closing[pallet.Number] {
			continue
		}
		committed := pallet.Locked
		if origin := baseline.Find(pallet.Number); origin != nil {
			committed = origin.Locked
		}
		if desired != committed {
			plan.Locks = append(plan.Locks, Operation{Kind: OpSetLock, PalletNumber: pallet.Number, Locked: desired})
		}
	}
	return plan
}

// CheckReleaseReady 发运前置校验：被标记发运的托盘所有占用槽位都必须有 DOA 编号
// 返回托盘编号到缺失服务标签的映射，全部满足时返回空映射。
func CheckReleaseReady(draft Snapshot, flags Flags) map[string][]string {
	missing := make(map[string][]string)
	for i := range draft {
		pallet := &draft[i]
		if !flags.Releases[pallet.Number] {
			continue
		}
		if tags := pallet.MissingDOA(); len(tags) > 0 {
			missing[pallet.Number] = tags
		}
	}
	return missing
}

// PalletChanged 托盘是否有待提交变更（用于界面标记）
func PalletChanged(baseline, draft Snapshot, flags Flags, number string) bool {
	current := draft.Find(number)
	origin := baseline.Find(number)
	if current == nil || origin == nil {
		return current != origin
	}
	if !sameTagSet(origin.ServiceTags(), current.ServiceTags()) {
		return true
	}
	if desired, ok := flags.Locks[number]; ok && desired != origin.Locked {
		return true
	}
	return flags.Deletes[number] || flags.Releases[number]
}

// HasPendingChanges 是否存在任何待提交变更
func HasPendingChanges(baseline, draft Snapshot, flags Flags) bool {
	if len(baseline) != len(draft) {
		return true
	}
	for i := range draft {
		if PalletChanged(baseline, draft, flags, draft[i].Number) {
			return true
		}
	}
	return len(diffDOA(baseline, draft)) > 0
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	left := append([]string(nil), a...)
	right := append([]string(nil), b...)
	sort.Strings(left)
	sort.Strings(right)
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}
