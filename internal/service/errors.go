package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// 错误分类，业务错误均归入其中之一，便于上层按类别分支
var (
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
)

// categoryError 带分类的业务错误
type categoryError struct {
	msg      string
	category error
}

func (e *categoryError) Error() string {
	return e.msg
}

func (e *categoryError) Unwrap() error {
	return e.category
}

func newCategoryError(category error, msg string) error {
	return &categoryError{msg: msg, category: category}
}

// 托盘与机器业务错误
var (
	ErrPalletNotFound        = newCategoryError(ErrNotFound, "pallet not found")
	ErrPalletNotOpen         = newCategoryError(ErrNotFound, "pallet is not open")
	ErrSystemNotFound        = newCategoryError(ErrNotFound, "system not found")
	ErrSystemNotInPallet     = newCategoryError(ErrConflict, "system is not in the source pallet")
	ErrPalletLocked          = newCategoryError(ErrConflict, "pallet is locked")
	ErrPalletFull            = newCategoryError(ErrConflict, "pallet has no free slot")
	ErrSlotOccupied          = newCategoryError(ErrConflict, "slot is occupied")
	ErrPalletNotEmpty        = newCategoryError(ErrConflict, "pallet is not empty")
	ErrSamePallet            = newCategoryError(ErrConflict, "source and destination pallet are the same")
	ErrSystemAlreadyOnPallet = newCategoryError(ErrConflict, "system already occupies a slot")
	ErrSystemShipped         = newCategoryError(ErrConflict, "system is on a released pallet")
	ErrPalletNumberConflict  = newCategoryError(ErrConflict, "pallet number allocation conflict")
	ErrReleasePrecondition   = newCategoryError(ErrPreconditionFailed, "release precondition failed")
)

// 参数与认证错误
var (
	ErrInvalidPalletNumber = errors.New("invalid pallet number")
	ErrInvalidServiceTag   = errors.New("invalid service tag")
	ErrInvalidSlot         = errors.New("invalid slot index")
	ErrInvalidDOA          = errors.New("invalid doa number")
	ErrInvalidImport       = errors.New("invalid doa import file")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrWeakPassword        = errors.New("weak password")
	ErrOperatorNotFound    = errors.New("operator not found")
	ErrArtifactNotFound    = newCategoryError(ErrNotFound, "artifact not found")
)

// MissingDOAError 发运前置校验失败，列出缺少 DOA 编号的服务标签
type MissingDOAError struct {
	PalletNumber string
	ServiceTags  []string
}

// NewMissingDOAError 创建缺失 DOA 错误，服务标签按字典序排列
func NewMissingDOAError(palletNumber string, tags []string) *MissingDOAError {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return &MissingDOAError{PalletNumber: palletNumber, ServiceTags: sorted}
}

func (e *MissingDOAError) Error() string {
	return fmt.Sprintf("missing DOA number for %s", strings.Join(e.ServiceTags, ", "))
}

// Is 支持 errors.Is(err, ErrReleasePrecondition) 与 errors.Is(err, ErrPreconditionFailed)
func (e *MissingDOAError) Is(target error) bool {
	return target == ErrReleasePrecondition || target == ErrPreconditionFailed
}
