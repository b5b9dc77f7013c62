package shared

import (
	"strconv"
	"strings"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

// ActorFromContext 由鉴权中间件写入的上下文构造操作人
func ActorFromContext(c *gin.Context) service.Actor {
	return service.Actor{
		OperatorID: c.GetUint("operator_id"),
		Username:   c.GetString("username"),
		RequestID:  c.GetString("request_id"),
	}
}

// RequireOperatorID 读取当前操作员 ID，缺失或类型错误时直接写出错误响应
func RequireOperatorID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("operator_id")
	if !exists {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return 0, false
	}
	id, ok := value.(uint)
	if !ok {
		RespondError(c, response.CodeInternal, "error.operator_id_type_invalid", nil)
		return 0, false
	}
	if id == 0 {
		RespondError(c, response.CodeUnauthorized, "error.operator_id_invalid", nil)
		return 0, false
	}
	return id, true
}

// ParsePage 读取 page/page_size 查询参数，越界时回落到默认值或上限
func ParsePage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	pageSize, _ := strconv.Atoi(strings.TrimSpace(c.Query("page_size")))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return page, pageSize
}
