package public

import "github.com/palletdock/internal/provider"

// Handler 公开只读接口处理器入口
// 说明：无需登录，仅提供托盘与机器查询。
type Handler struct {
	*provider.Container
}

// New 创建公开处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
