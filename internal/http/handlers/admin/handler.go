package admin

import "github.com/palletdock/internal/provider"

// Handler 后台接口处理器入口
// 说明：所有托盘变更接口都经过 JWT 与 RBAC 中间件，操作人写入审计日志。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
