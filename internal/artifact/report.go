package artifact

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX XLSX 内容类型
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportSlot 报表中的槽位行
type ReportSlot struct {
	SlotIndex  int
	ServiceTag string
	PPID       string
	DPN        string
	DOANumber  string
}

// ReportPallet 报表中的托盘
type ReportPallet struct {
	PalletNumber string
	Shape        string
	Locked       bool
	FactoryCode  string
	CreatedAt    time.Time
	Slots        []ReportSlot
}

var reportHeaders = []string{"Pallet", "Shape", "Locked", "Factory", "Slot", "Service Tag", "PPID", "DPN", "DOA"}

// BuildOpenPalletReport 生成 open 托盘报表，summary 页为每托盘汇总，systems 页为槽位明细
func BuildOpenPalletReport(pallets []ReportPallet, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	summarySheet := "summary"
	systemsSheet := "systems"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(systemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Open Pallets")
	_ = f.SetCellValue(summarySheet, "A2", "Generated")
	_ = f.SetCellValue(summarySheet, "B2", generatedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Pallet")
	_ = f.SetCellValue(summarySheet, "B4", "Shape")
	_ = f.SetCellValue(summarySheet, "C4", "Locked")
	_ = f.SetCellValue(summarySheet, "D4", "Factory")
	_ = f.SetCellValue(summarySheet, "E4", "Occupied")
	_ = f.SetCellValue(summarySheet, "F4", "Created")
	for i, pallet := range pallets {
		row := i + 5
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), pallet.PalletNumber)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), pallet.Shape)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), pallet.Locked)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), pallet.FactoryCode)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), len(pallet.Slots))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("F%d", row), pallet.CreatedAt.Format("2006-01-02 15:04"))
	}

	for col, header := range reportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(systemsSheet, cell, header)
	}
	row := 2
	for _, pallet := range pallets {
		for _, slot := range pallet.Slots {
			values := []interface{}{
				pallet.PalletNumber,
				pallet.Shape,
				pallet.Locked,
				pallet.FactoryCode,
				slot.SlotIndex + 1,
				slot.ServiceTag,
				slot.PPID,
				slot.DPN,
				slot.DOANumber,
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(systemsSheet, cell, &values); err != nil {
				return nil, err
			}
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
