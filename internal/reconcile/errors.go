package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrStepTimeout      = errors.New("remote call timed out")
	ErrReleaseNotReady  = errors.New("all service tags must have a DOA number")

	ErrPalletNotFound = errors.New("pallet not found")
	ErrSystemNotFound = errors.New("system not found")
	ErrPalletLocked   = errors.New("cannot move systems when either pallet is locked")
	ErrSlotOccupied   = errors.New("target slot already occupied")
	ErrInvalidSlot    = errors.New("invalid slot index")
	ErrPalletNotEmpty = errors.New("only empty pallets can be deleted")
	ErrPalletEmpty    = errors.New("empty pallets cannot be released")
	ErrDOARequired    = errors.New("DOA number is required before saving")
)

// missingDOAMarker 服务端发运失败消息前缀，后接逗号分隔的服务标签
const missingDOAMarker = "missing DOA number for "

// MissingTagsCarrier 携带缺失 DOA 服务标签的错误
type MissingTagsCarrier interface {
	MissingServiceTags() []string
}

// MissingDOATags 从发运失败错误中提取缺失 DOA 的服务标签
// 优先读取结构化字段，否则在错误消息中查找 "missing DOA number for X, Y"（不区分大小写）。
func MissingDOATags(err error) ([]string, bool) {
	if err == nil {
		return nil, false
	}
	var carrier MissingTagsCarrier
	if errors.As(err, &carrier) {
		if tags := carrier.MissingServiceTags(); len(tags) > 0 {
			return tags, true
		}
	}
	return ParseMissingDOA(err.Error())
}

// ParseMissingDOA 解析缺失 DOA 消息
func ParseMissingDOA(msg string) ([]string, bool) {
	idx := strings.Index(strings.ToLower(msg), strings.ToLower(missingDOAMarker))
	if idx < 0 {
		return nil, false
	}
	rest := msg[idx+len(missingDOAMarker):]
	var tags []string
	for _, part := range strings.Split(rest, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, len(tags) > 0
}

// StepError 提交流水线中某一步失败
type StepError struct {
	Op  Operation
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op.Kind, e.Op.Target(), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Message 面向操作员的失败提示，无法识别的错误降级为通用消息
func (e *StepError) Message() string {
	if _, ok := MissingDOATags(e.Err); ok && e.Op.Kind == OpRelease {
		return "All Service Tags must have a DOA number."
	}
	switch e.Op.Kind {
	case OpMove:
		return fmt.Sprintf("Move failed for %s: %v", e.Op.ServiceTag, e.Err)
	case OpSetDOA:
		return fmt.Sprintf("Failed to save DOA number for %s: %v", e.Op.ServiceTag, e.Err)
	case OpDelete:
		return fmt.Sprintf("Delete failed for %s: %v", e.Op.PalletNumber, e.Err)
	case OpRelease:
		return fmt.Sprintf("Release failed for pallet %s: %v", e.Op.PalletNumber, e.Err)
	case OpSetLock:
		verb := "unlock"
		if e.Op.Locked {
			verb = "lock"
		}
		return fmt.Sprintf("Failed to %s %s: %v", verb, e.Op.PalletNumber, e.Err)
	default:
		return fmt.Sprintf("Submit failed: %v", e.Err)
	}
}
