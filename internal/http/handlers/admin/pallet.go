package admin

import (
	"strings"
	"time"

	"github.com/palletdock/internal/artifact"
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/i18n"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

// ListPallets 托盘列表
func (h *Handler) ListPallets(c *gin.Context) {
	page, pageSize := parsePage(c)
	pallets, total, err := h.PalletService.ListPallets(repository.PalletListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("search")),
		Shape:    strings.TrimSpace(c.Query("shape")),
		Locked:   parseOptionalBool(c.Query("locked")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, service.NewPalletViews(pallets), response.NewPagination(page, pageSize, total))
}

// GetPallet 托盘详情
func (h *Handler) GetPallet(c *gin.Context) {
	pallet, err := h.PalletService.GetPallet(c.Param("number"))
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, service.NewPalletView(pallet))
}

type createPalletRequest struct {
	FactoryCode string `json:"factory_code"`
	DPN         string `json:"dpn"`
}

// CreatePallet 新建空托盘
func (h *Handler) CreatePallet(c *gin.Context) {
	var req createPalletRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	pallet, err := h.PalletService.Create(c.Request.Context(), currentActor(c), service.CreatePalletInput{
		FactoryCode: req.FactoryCode,
		DPN:         req.DPN,
	})
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, service.NewPalletView(pallet))
}

type moveSystemRequest struct {
	ServiceTag       string `json:"service_tag" binding:"required"`
	FromPalletNumber string `json:"from_pallet_number" binding:"required"`
	ToPalletNumber   string `json:"to_pallet_number" binding:"required"`
	ToSlot           *int   `json:"to_slot"`
}

// MoveSystem 托盘间移动机器
func (h *Handler) MoveSystem(c *gin.Context) {
	var req moveSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	placement, err := h.PalletService.MoveSystem(c.Request.Context(), currentActor(c), service.MoveSystemInput{
		ServiceTag:       req.ServiceTag,
		FromPalletNumber: req.FromPalletNumber,
		ToPalletNumber:   req.ToPalletNumber,
		ToSlot:           req.ToSlot,
	})
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, placement)
}

type assignSystemRequest struct {
	ServiceTag   string `json:"service_tag" binding:"required"`
	PalletNumber string `json:"pallet_number" binding:"required"`
	Slot         *int   `json:"slot"`
}

// AssignSystem 机器上托盘
func (h *Handler) AssignSystem(c *gin.Context) {
	var req assignSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	placement, err := h.PalletService.AssignSystem(c.Request.Context(), currentActor(c), service.AssignSystemInput{
		ServiceTag:   req.ServiceTag,
		PalletNumber: req.PalletNumber,
		Slot:         req.Slot,
	})
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, placement)
}

// DeletePallet 删除空托盘
func (h *Handler) DeletePallet(c *gin.Context) {
	number := c.Param("number")
	if err := h.PalletService.DeletePallet(c.Request.Context(), currentActor(c), number); err != nil {
		respondPalletError(c, err)
		return
	}
	msg := i18n.T(i18n.ResolveLocale(c), "success.pallet_deleted")
	response.SuccessWithMsg(c, msg, gin.H{"pallet_number": strings.TrimSpace(number)})
}

type setLockRequest struct {
	Locked *bool `json:"locked" binding:"required"`
}

// SetPalletLock 锁定或解锁托盘
func (h *Handler) SetPalletLock(c *gin.Context) {
	var req setLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	pallet, err := h.PalletService.SetLock(c.Request.Context(), currentActor(c), c.Param("number"), *req.Locked)
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, service.NewPalletView(pallet))
}

// ReleasePallet 发运托盘，缺 DOA 时返回 412 与缺失的服务标签
func (h *Handler) ReleasePallet(c *gin.Context) {
	pallet, err := h.PalletService.Release(c.Request.Context(), currentActor(c), c.Param("number"))
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, service.NewPalletView(pallet))
}

// RepairShapes 补齐 open 托盘形状
func (h *Handler) RepairShapes(c *gin.Context) {
	result, err := h.PalletService.RepairShapes(c.Request.Context(), currentActor(c))
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, result)
}

// GetOpenPalletReport 导出 open 托盘 XLSX
func (h *Handler) GetOpenPalletReport(c *gin.Context) {
	body, err := h.ArtifactService.BuildOpenPalletReport(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.report_failed", err)
		return
	}
	filename := "open-pallets-" + time.Now().Format("20060102-150405") + ".xlsx"
	response.Attachment(c, artifact.ContentTypeXLSX, filename, false, body)
}

// GetPalletManifest 下载已发运托盘的发运清单 PDF
func (h *Handler) GetPalletManifest(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	reader, err := h.ArtifactService.OpenManifest(c.Request.Context(), number)
	if err != nil {
		respondPalletError(c, err)
		return
	}
	defer reader.Close()

	if _, err := response.StreamAttachment(c, artifact.ContentTypePDF, number+".pdf", true, reader); err != nil {
		requestLog(c).Warnw("pallet_manifest_stream_failed", "pallet_number", number, "error", err)
	}
}
