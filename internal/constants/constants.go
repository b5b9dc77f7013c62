package constants

// 托盘状态常量
const (
	PalletStatusOpen     = "open"
	PalletStatusReleased = "released"
)

// 托盘布局常量
const (
	PalletSlotCount    = 9
	PalletNumberPrefix = "PALLET-"
	PalletDayLayout    = "20060102"
	DOANumberMaxLength = 20
	PalletDPNMixed     = "MIXED"
)

// 分配锁作用域
const (
	AllocationScopePalletNumber = "pallet_number"
	AllocationScopePalletShape  = "pallet_shape"
)

// 审计动作常量
const (
	AuditActionCreate      = "create"
	AuditActionMove        = "move"
	AuditActionAssign      = "assign"
	AuditActionDelete      = "delete"
	AuditActionLock        = "lock"
	AuditActionUnlock      = "unlock"
	AuditActionRelease     = "release"
	AuditActionSetDOA      = "set_doa"
	AuditActionShapeRepair = "shape_repair"
	AuditActionSystemSave  = "system_save"
)

// 产物类型常量
const (
	ArtifactKindLabel    = "label"
	ArtifactKindManifest = "manifest"
)

// 产物占位常量
const (
	PlaceholderMissingDOA      = "MISSING-DOA"
	PlaceholderMissingPPID     = "MISSING-PPID"
	PlaceholderMissingTag      = "MISSING-ST"
	PlaceholderMissingPallet   = "MISSING-PALLET"
	PlaceholderMissingDPN      = "MISSING-DPN"
	PlaceholderMissingReleased = "MISSING-RELEASED"
	PlaceholderUnknown         = "UNKNOWN"
	PlaceholderNotApplicable   = "N/A"
)

// 存储驱动常量
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// 队列常量
const (
	QueueDefault  = "default"
	QueueArtifact = "artifact"
)

// 异步任务类型常量
const (
	TaskPalletManifest = "artifact:pallet_manifest"
	TaskSystemLabels   = "artifact:system_labels"
)

// 分页常量
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
