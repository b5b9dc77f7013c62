package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAuditLogs 托盘审计日志
func (h *Handler) ListAuditLogs(c *gin.Context) {
	page, pageSize := parsePage(c)
	filter := repository.AuditLogListFilter{
		Page:         page,
		PageSize:     pageSize,
		Action:       strings.TrimSpace(c.Query("action")),
		PalletNumber: strings.TrimSpace(c.Query("pallet_number")),
		ServiceTag:   strings.ToUpper(strings.TrimSpace(c.Query("service_tag"))),
	}
	if raw := strings.TrimSpace(c.Query("operator_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.operator_id_invalid", nil)
			return
		}
		filter.OperatorID = uint(id)
	}
	var ok bool
	if filter.CreatedFrom, ok = parseTimeQuery(c, "created_from"); !ok {
		return
	}
	if filter.CreatedTo, ok = parseTimeQuery(c, "created_to"); !ok {
		return
	}

	logs, total, err := h.AuditService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, logs, response.NewPagination(page, pageSize, total))
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return nil, false
	}
	return &parsed, true
}
