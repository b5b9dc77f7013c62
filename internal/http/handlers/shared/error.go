package shared

import (
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/i18n"
	"github.com/palletdock/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 带 request_id 与操作员的日志实例
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	var kv []interface{}
	if id := c.GetString("request_id"); id != "" {
		kv = append(kv, "request_id", id)
	}
	if operatorID := c.GetUint("operator_id"); operatorID != 0 {
		kv = append(kv, "operator_id", operatorID)
	}
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// RespondError 按 i18n key 返回错误；err 非空时记录原始错误，响应中不暴露
func RespondError(c *gin.Context, code int, key string, err error) {
	respond(c, code, i18n.T(i18n.ResolveLocale(c), key), nil, err)
}

// RespondErrorWithMsg 返回已格式化的错误文案
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	respond(c, code, msg, nil, err)
}

func respond(c *gin.Context, code int, msg string, data gin.H, err error) {
	if err != nil {
		path := ""
		method := ""
		if c.Request != nil {
			method = c.Request.Method
			path = c.FullPath()
		}
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"method", method,
			"route", path,
			"error", err,
		)
	}
	if data == nil {
		response.Error(c, code, msg)
		return
	}
	response.ErrorWithData(c, code, msg, data)
}
