package reconcile

import (
	"strings"

	"github.com/palletdock/internal/constants"
)

// SlotSystem 槽位中的机器
type SlotSystem struct {
	ServiceTag string `json:"service_tag"`
	PPID       string `json:"ppid"`
	DPN        string `json:"dpn"`
	DOANumber  string `json:"doa_number"`
}

// HasDOA 是否已填写 DOA 编号
func (s *SlotSystem) HasDOA() bool {
	return s != nil && strings.TrimSpace(s.DOANumber) != ""
}

// Pallet 客户端持有的托盘快照
type Pallet struct {
	ID          uint                                   `json:"id"`
	Number      string                                 `json:"pallet_number"`
	Status      string                                 `json:"status"`
	Locked      bool                                   `json:"locked"`
	Shape       string                                 `json:"shape"`
	FactoryCode string                                 `json:"factory_code"`
	DPN         string                                 `json:"dpn"`
	Slots       [constants.PalletSlotCount]*SlotSystem `json:"slots"`
}

// IsEmpty 是否没有任何占用槽位
func (p *Pallet) IsEmpty() bool {
	for _, slot := range p.Slots {
		if slot != nil && slot.ServiceTag != "" {
			return false
		}
	}
	return true
}

// ServiceTags 按槽位顺序返回已占用的服务标签
func (p *Pallet) ServiceTags() []string {
	tags := make([]string, 0, len(p.Slots))
	for _, slot := range p.Slots {
		if slot != nil && slot.ServiceTag != "" {
			tags = append(tags, slot.ServiceTag)
		}
	}
	return tags
}

// MissingDOA 返回缺少 DOA 编号的服务标签
func (p *Pallet) MissingDOA() []string {
	var missing []string
	for _, slot := range p.Slots {
		if slot != nil && slot.ServiceTag != "" && !slot.HasDOA() {
			missing = append(missing, slot.ServiceTag)
		}
	}
	return missing
}

// FindSlot 查找服务标签所在槽位，未找到返回 -1
func (p *Pallet) FindSlot(serviceTag string) int {
	for idx, slot := range p.Slots {
		if slot != nil && slot.ServiceTag == serviceTag {
			return idx
		}
	}
	return -1
}

// FirstFreeSlot 第一个空槽，已满返回 -1
func (p *Pallet) FirstFreeSlot() int {
	for idx, slot := range p.Slots {
		if slot == nil || slot.ServiceTag == "" {
			return idx
		}
	}
	return -1
}

func (p Pallet) clone() Pallet {
	out := p
	for idx, slot := range p.Slots {
		if slot != nil {
			copied := *slot
			out.Slots[idx] = &copied
		}
	}
	return out
}

// Snapshot 托盘快照列表，顺序即展示顺序
type Snapshot []Pallet

// Clone 深拷贝快照，草稿与基线互不影响
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i := range s {
		out[i] = s[i].clone()
	}
	return out
}

// Find 按托盘编号查找
func (s Snapshot) Find(number string) *Pallet {
	for i := range s {
		if s[i].Number == number {
			return &s[i]
		}
	}
	return nil
}

// Locate 查找服务标签所在托盘与槽位
func (s Snapshot) Locate(serviceTag string) (*Pallet, int) {
	for i := range s {
		if idx := s[i].FindSlot(serviceTag); idx >= 0 {
			return &s[i], idx
		}
	}
	return nil, -1
}

// System 机器详情查询结果，用于标签与清单
type System struct {
	ServiceTag   string  `json:"service_tag"`
	PPID         string  `json:"ppid"`
	DPN          string  `json:"dpn"`
	Config       string  `json:"config"`
	DellCustomer string  `json:"dell_customer"`
	DOANumber    *string `json:"doa_number"`
}

// NormalizeDOA 去除首尾空白并截断到 20 个字符
func NormalizeDOA(raw string) string {
	value := strings.TrimSpace(raw)
	runes := []rune(value)
	if len(runes) > constants.DOANumberMaxLength {
		value = strings.TrimSpace(string(runes[:constants.DOANumberMaxLength]))
	}
	return value
}
