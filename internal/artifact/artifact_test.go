package artifact

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestLabelNormalizeFallbacks(t *testing.T) {
	label := LabelData{ServiceTag: " abc123 "}.Normalize("https://dock.example/systems/")
	if label.ServiceTag != "ABC123" {
		t.Fatalf("unexpected service tag %s", label.ServiceTag)
	}
	if label.PalletNumber != "UNKNOWN" || label.DPN != "UNKNOWN" || label.FactoryCode != "N/A" {
		t.Fatalf("unexpected placeholders %+v", label)
	}
	if label.URL != "https://dock.example/systems/ABC123" {
		t.Fatalf("unexpected url %s", label.URL)
	}
}

func TestManifestNormalizePlaceholders(t *testing.T) {
	manifest := ManifestData{
		PalletNumber: "PALLET-20250601-001",
		Systems: []ManifestSystem{
			{ServiceTag: "ABC123", PPID: "PPID1", DOANumber: "DOA1"},
			{ServiceTag: " ", PPID: "", DOANumber: ""},
		},
	}.Normalize()
	if manifest.DPN != "MIXED" || manifest.FactoryCode != "N/A" || manifest.ReleasedDate != "MISSING-RELEASED" {
		t.Fatalf("unexpected header placeholders %+v", manifest)
	}
	second := manifest.Systems[1]
	if second.ServiceTag != "MISSING-ST" || second.PPID != "MISSING-PPID" || second.DOANumber != "MISSING-DOA" {
		t.Fatalf("unexpected system placeholders %+v", second)
	}
}

func TestRenderLabelsProducesPDF(t *testing.T) {
	body, err := RenderLabels([]LabelData{
		{ServiceTag: "ABC123", PalletNumber: "PALLET-20250601-001", Shape: "star"},
		{ServiceTag: "XYZ789", PalletNumber: "PALLET-20250601-002", Shape: "hexagon"},
	})
	if err != nil {
		t.Fatalf("render labels failed: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("expected pdf header")
	}
	if _, err := RenderLabels(nil); !errors.Is(err, ErrNoLabels) {
		t.Fatalf("expected ErrNoLabels, got %v", err)
	}
}

func TestRenderManifestProducesPDF(t *testing.T) {
	body, err := RenderManifest(ManifestData{
		PalletNumber: "PALLET-20250601-001",
		ReleasedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Systems:      []ManifestSystem{{ServiceTag: "ABC123", DOANumber: "DOA-1"}},
	})
	if err != nil {
		t.Fatalf("render manifest failed: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("expected pdf header")
	}
}

func TestBuildOpenPalletReport(t *testing.T) {
	body, err := BuildOpenPalletReport([]ReportPallet{
		{
			PalletNumber: "PALLET-20250601-001",
			Shape:        "star",
			FactoryCode:  "TSS",
			Slots: []ReportSlot{
				{SlotIndex: 0, ServiceTag: "ABC123", DOANumber: "DOA-1"},
				{SlotIndex: 4, ServiceTag: "XYZ789"},
			},
		},
	}, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build report failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("open report failed: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("systems")
	if err != nil {
		t.Fatalf("read rows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[2][5] != "XYZ789" || rows[2][4] != "5" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
	occupied, err := f.GetCellValue("summary", "E5")
	if err != nil || occupied != "2" {
		t.Fatalf("expected occupied 2, got %q err=%v", occupied, err)
	}
}
