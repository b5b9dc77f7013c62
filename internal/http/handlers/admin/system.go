package admin

import (
	"net/http"
	"strings"

	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

// maxDOAImportBytes DOA 导入文件大小上限
const maxDOAImportBytes = 4 << 20

// ListSystems 机器列表
func (h *Handler) ListSystems(c *gin.Context) {
	page, pageSize := parsePage(c)
	missing := parseOptionalBool(c.Query("missing_doa"))
	systems, total, err := h.SystemService.ListSystems(repository.SystemListFilter{
		Page:        page,
		PageSize:    pageSize,
		Search:      strings.TrimSpace(c.Query("search")),
		MissingDOA:  missing != nil && *missing,
		FactoryCode: strings.TrimSpace(c.Query("factory_code")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, systems, response.NewPagination(page, pageSize, total))
}

// GetSystem 机器详情
func (h *Handler) GetSystem(c *gin.Context) {
	system, err := h.SystemService.GetSystem(c.Request.Context(), c.Param("service_tag"))
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, system)
}

type upsertSystemRequest struct {
	ServiceTag   string  `json:"service_tag" binding:"required"`
	PPID         string  `json:"ppid"`
	DPN          string  `json:"dpn"`
	Config       string  `json:"config"`
	DellCustomer string  `json:"dell_customer"`
	Issue        string  `json:"issue"`
	Location     string  `json:"location"`
	FactoryCode  string  `json:"factory_code"`
	DOANumber    *string `json:"doa_number"`
}

// UpsertSystem 新建或更新机器档案
func (h *Handler) UpsertSystem(c *gin.Context) {
	var req upsertSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	system, created, err := h.SystemService.UpsertSystem(c.Request.Context(), currentActor(c), service.UpsertSystemInput{
		ServiceTag:   req.ServiceTag,
		PPID:         req.PPID,
		DPN:          req.DPN,
		Config:       req.Config,
		DellCustomer: req.DellCustomer,
		Issue:        req.Issue,
		Location:     req.Location,
		FactoryCode:  req.FactoryCode,
		DOANumber:    req.DOANumber,
	})
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, gin.H{"system": system, "created": created})
}

type updateDOARequest struct {
	DOANumber string `json:"doa_number"`
}

// UpdateSystemDOA 更新机器 DOA 编号，空值表示清除
func (h *Handler) UpdateSystemDOA(c *gin.Context) {
	var req updateDOARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	system, err := h.SystemService.SetDOA(c.Request.Context(), currentActor(c), c.Param("service_tag"), req.DOANumber)
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, system)
}

// ImportDOANumbers 上传 CSV 批量更新 DOA 编号
// 支持 multipart 字段 file，或直接以 text/csv 作为请求体。
func (h *Handler) ImportDOANumbers(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDOAImportBytes)

	var result *service.DOAImportResult
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, ferr := c.FormFile("file")
		if ferr != nil {
			respondError(c, response.CodeBadRequest, "error.invalid_import", ferr)
			return
		}
		file, ferr := fileHeader.Open()
		if ferr != nil {
			respondError(c, response.CodeBadRequest, "error.invalid_import", ferr)
			return
		}
		defer file.Close()
		result, err = h.SystemService.ImportDOANumbers(c.Request.Context(), currentActor(c), file)
	} else {
		result, err = h.SystemService.ImportDOANumbers(c.Request.Context(), currentActor(c), c.Request.Body)
	}
	if err != nil {
		respondPalletError(c, err)
		return
	}
	response.Success(c, result)
}
