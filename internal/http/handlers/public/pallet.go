package public

import (
	"strings"

	handlershared "github.com/palletdock/internal/http/handlers/shared"
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

// ListPallets 托盘列表（只读）
func (h *Handler) ListPallets(c *gin.Context) {
	page, pageSize := handlershared.ParsePage(c)

	pallets, total, err := h.PalletService.ListPallets(repository.PalletListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, service.NewPalletViews(pallets), response.NewPagination(page, pageSize, total))
}

// GetPallet 托盘详情（只读）
func (h *Handler) GetPallet(c *gin.Context) {
	pallet, err := h.PalletService.GetPallet(c.Param("number"))
	if err != nil {
		handlershared.RespondPalletError(c, err)
		return
	}
	response.Success(c, service.NewPalletView(pallet))
}

// GetSystem 按服务标签查询机器
func (h *Handler) GetSystem(c *gin.Context) {
	system, err := h.SystemService.GetSystem(c.Request.Context(), c.Param("service_tag"))
	if err != nil {
		handlershared.RespondPalletError(c, err)
		return
	}
	response.Success(c, system)
}
