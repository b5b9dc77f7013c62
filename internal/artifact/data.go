package artifact

import (
	"strings"
	"time"

	"github.com/palletdock/internal/constants"
)

// LabelData 机器发运标签内容
type LabelData struct {
	ServiceTag   string
	PalletNumber string
	Shape        string
	DPN          string
	Config       string
	DellCustomer string
	PPID         string
	FactoryCode  string
	URL          string
}

// Normalize 查询失败或缺字段时填充占位值
func (d LabelData) Normalize(baseURL string) LabelData {
	d.ServiceTag = strings.ToUpper(strings.TrimSpace(d.ServiceTag))
	d.PalletNumber = orPlaceholder(d.PalletNumber, constants.PlaceholderUnknown)
	d.Shape = strings.TrimSpace(d.Shape)
	d.DPN = orPlaceholder(d.DPN, constants.PlaceholderUnknown)
	d.Config = strings.TrimSpace(d.Config)
	d.DellCustomer = strings.TrimSpace(d.DellCustomer)
	d.PPID = strings.TrimSpace(d.PPID)
	d.FactoryCode = orPlaceholder(d.FactoryCode, constants.PlaceholderNotApplicable)
	if strings.TrimSpace(d.URL) == "" && d.ServiceTag != "" {
		d.URL = strings.TrimSpace(baseURL) + d.ServiceTag
	}
	return d
}

// ManifestSystem 发运清单中的机器行
type ManifestSystem struct {
	ServiceTag string
	PPID       string
	DOANumber  string
}

// ManifestData 托盘发运清单内容
type ManifestData struct {
	PalletNumber string
	ReleasedAt   time.Time
	DPN          string
	FactoryCode  string
	Systems      []ManifestSystem
}

// NormalizedManifest 填充占位值后的清单，所有字段均为可直接打印的文本
type NormalizedManifest struct {
	PalletNumber string
	ReleasedDate string
	DPN          string
	FactoryCode  string
	Systems      []ManifestSystem
}

// Normalize 填充清单占位值
func (d ManifestData) Normalize() NormalizedManifest {
	out := NormalizedManifest{
		PalletNumber: orPlaceholder(d.PalletNumber, constants.PlaceholderMissingPallet),
		ReleasedDate: constants.PlaceholderMissingReleased,
		DPN:          orPlaceholder(d.DPN, constants.PalletDPNMixed),
		FactoryCode:  orPlaceholder(d.FactoryCode, constants.PlaceholderNotApplicable),
		Systems:      make([]ManifestSystem, 0, len(d.Systems)),
	}
	if !d.ReleasedAt.IsZero() {
		out.ReleasedDate = d.ReleasedAt.Format("2006-01-02")
	}
	for _, sys := range d.Systems {
		out.Systems = append(out.Systems, ManifestSystem{
			ServiceTag: orPlaceholder(sys.ServiceTag, constants.PlaceholderMissingTag),
			PPID:       orPlaceholder(sys.PPID, constants.PlaceholderMissingPPID),
			DOANumber:  orPlaceholder(sys.DOANumber, constants.PlaceholderMissingDOA),
		})
	}
	return out
}

func orPlaceholder(value, placeholder string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return placeholder
	}
	return value
}
