package service

import (
	"time"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/models"
)

// SlotView 槽位视图
type SlotView struct {
	SlotIndex  int     `json:"slot_index"`
	ServiceTag string  `json:"service_tag"`
	PPID       string  `json:"ppid"`
	DPN        string  `json:"dpn"`
	DOANumber  *string `json:"doa_number"`
}

// PalletView 托盘视图，slots 固定 9 格，空槽为 null
type PalletView struct {
	ID            uint                                 `json:"id"`
	PalletNumber  string                               `json:"pallet_number"`
	Status        string                               `json:"status"`
	Locked        bool                                 `json:"locked"`
	Shape         *string                              `json:"shape"`
	FactoryCode   string                               `json:"factory_code"`
	DPN           string                               `json:"dpn"`
	OccupiedCount int                                  `json:"occupied_count"`
	Slots         [constants.PalletSlotCount]*SlotView `json:"slots"`
	CreatedAt     time.Time                            `json:"created_at"`
	ReleasedAt    *time.Time                           `json:"released_at"`
}

// NewPalletView 将托盘模型转换为视图
func NewPalletView(pallet *models.Pallet) *PalletView {
	if pallet == nil {
		return nil
	}
	view := &PalletView{
		ID:           pallet.ID,
		PalletNumber: pallet.PalletNumber,
		Status:       pallet.Status,
		Locked:       pallet.Locked,
		Shape:        pallet.Shape,
		FactoryCode:  pallet.FactoryCode,
		DPN:          pallet.DPN,
		CreatedAt:    pallet.CreatedAt,
		ReleasedAt:   pallet.ReleasedAt,
	}
	for idx, slot := range pallet.SlotArray() {
		if slot == nil {
			continue
		}
		item := &SlotView{SlotIndex: idx}
		if slot.System != nil {
			item.ServiceTag = slot.System.ServiceTag
			item.PPID = slot.System.PPID
			item.DPN = slot.System.DPN
			item.DOANumber = slot.System.DOANumber
		}
		view.Slots[idx] = item
		view.OccupiedCount++
	}
	return view
}

// NewPalletViews 批量转换
func NewPalletViews(pallets []models.Pallet) []PalletView {
	views := make([]PalletView, 0, len(pallets))
	for i := range pallets {
		views = append(views, *NewPalletView(&pallets[i]))
	}
	return views
}
