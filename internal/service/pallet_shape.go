package service

// PalletShapes 托盘形状枚举，按分配优先级排序
var PalletShapes = []string{
	"star",
	"triangle_up",
	"triangle_right",
	"triangle_left",
	"triangle_down",
	"circle",
	"square",
	"diamond",
	"pentagon",
	"hexagon",
}

// AllocateShape 返回第一个未被 open 托盘占用的形状
// 形状池耗尽时返回 ok=false，调用方应视为“暂无形状”而非错误。
func AllocateShape(inUse []string) (string, bool) {
	used := make(map[string]struct{}, len(inUse))
	for _, shape := range inUse {
		used[shape] = struct{}{}
	}
	for _, shape := range PalletShapes {
		if _, taken := used[shape]; !taken {
			return shape, true
		}
	}
	return "", false
}

// IsKnownShape 判断形状是否属于枚举
func IsKnownShape(shape string) bool {
	for _, item := range PalletShapes {
		if item == shape {
			return true
		}
	}
	return false
}
