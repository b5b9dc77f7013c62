package shared

import (
	"errors"
	"strings"

	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/i18n"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 业务错误到接口错误码与文案的映射
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// PalletErrorRules 托盘与机器业务错误映射，精确错误在前，分类错误兜底
var PalletErrorRules = []MappedError{
	{Target: service.ErrInvalidPalletNumber, Code: response.CodeBadRequest, Key: "error.invalid_pallet_number"},
	{Target: service.ErrInvalidServiceTag, Code: response.CodeBadRequest, Key: "error.invalid_service_tag"},
	{Target: service.ErrInvalidSlot, Code: response.CodeBadRequest, Key: "error.invalid_slot"},
	{Target: service.ErrInvalidDOA, Code: response.CodeBadRequest, Key: "error.invalid_doa"},
	{Target: service.ErrInvalidImport, Code: response.CodeBadRequest, Key: "error.invalid_import"},
	{Target: service.ErrPalletNotFound, Code: response.CodeNotFound, Key: "error.pallet_not_found"},
	{Target: service.ErrPalletNotOpen, Code: response.CodeNotFound, Key: "error.pallet_not_open"},
	{Target: service.ErrSystemNotFound, Code: response.CodeNotFound, Key: "error.system_not_found"},
	{Target: service.ErrArtifactNotFound, Code: response.CodeNotFound, Key: "error.artifact_not_found"},
	{Target: service.ErrPalletLocked, Code: response.CodeConflict, Key: "error.pallet_locked"},
	{Target: service.ErrPalletFull, Code: response.CodeConflict, Key: "error.pallet_full"},
	{Target: service.ErrSlotOccupied, Code: response.CodeConflict, Key: "error.slot_occupied"},
	{Target: service.ErrPalletNotEmpty, Code: response.CodeConflict, Key: "error.pallet_not_empty"},
	{Target: service.ErrSamePallet, Code: response.CodeConflict, Key: "error.same_pallet"},
	{Target: service.ErrSystemNotInPallet, Code: response.CodeConflict, Key: "error.system_not_in_pallet"},
	{Target: service.ErrSystemAlreadyOnPallet, Code: response.CodeConflict, Key: "error.system_already_on_pallet"},
	{Target: service.ErrSystemShipped, Code: response.CodeConflict, Key: "error.system_shipped"},
	{Target: service.ErrPalletNumberConflict, Code: response.CodeConflict, Key: "error.pallet_number_conflict"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.not_found"},
	{Target: service.ErrConflict, Code: response.CodeConflict, Key: "error.conflict"},
}

// RespondMappedError 按规则映射业务错误，未命中时使用兜底错误码并记录原始错误
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Key, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}

// RespondPalletError 托盘业务错误响应；发运前置校验失败时附带缺失 DOA 的服务标签
func RespondPalletError(c *gin.Context, err error) {
	var missing *service.MissingDOAError
	if errors.As(err, &missing) {
		locale := i18n.ResolveLocale(c)
		msg := i18n.Sprintf(locale, "error.release_missing_doa", strings.Join(missing.ServiceTags, ", "))
		RequestLog(c).Warnw("handler_release_precondition_failed",
			"pallet_number", missing.PalletNumber,
			"missing_service_tags", missing.ServiceTags,
		)
		response.ErrorWithData(c, response.CodePreconditionFailed, msg, gin.H{
			"pallet_number":        missing.PalletNumber,
			"missing_service_tags": missing.ServiceTags,
		})
		return
	}
	RespondMappedError(c, err, PalletErrorRules, response.CodeInternal, "error.internal")
}
