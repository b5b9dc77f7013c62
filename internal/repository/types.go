package repository

import "time"

// PalletListFilter 查询托盘列表的过滤条件
type PalletListFilter struct {
	Page     int
	PageSize int
	Status   string
	Search   string
	Shape    string
	Locked   *bool
	// WithSystems 是否预加载槽位上的机器
	WithSystems bool
}

// SystemListFilter 查询机器列表的过滤条件
type SystemListFilter struct {
	Page        int
	PageSize    int
	Search      string
	MissingDOA  bool
	FactoryCode string
}

// AuditLogListFilter 查询托盘审计日志的过滤条件
type AuditLogListFilter struct {
	Page         int
	PageSize     int
	OperatorID   uint
	Action       string
	PalletNumber string
	ServiceTag   string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}
