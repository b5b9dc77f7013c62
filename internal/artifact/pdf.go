package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/jung-kurt/gofpdf"
)

// ContentTypePDF PDF 内容类型
const ContentTypePDF = "application/pdf"

// ErrNoLabels 没有可渲染的标签
var ErrNoLabels = errors.New("no labels to render")

// RenderLabels 渲染机器发运标签，每台机器一页
func RenderLabels(labels []LabelData) ([]byte, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: 105, Ht: 148},
	})
	pdf.SetAutoPageBreak(false, 0)
	for _, label := range labels {
		renderLabelPage(pdf, label)
	}
	return output(pdf)
}

func renderLabelPage(pdf *gofpdf.Fpdf, label LabelData) {
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, label.ServiceTag, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Pallet", label.PalletNumber},
		{"DPN", label.DPN},
		{"Config", label.Config},
		{"Customer", label.DellCustomer},
		{"PPID", label.PPID},
		{"Factory", label.FactoryCode},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(24, 6, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(80, 6, row[1], "", 1, "L", false, 0, "")
	}
	if label.URL != "" {
		pdf.Ln(2)
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 5, label.URL, "", 1, "L", false, 0, label.URL)
	}
	if label.Shape != "" {
		pageW, _ := pdf.GetPageSize()
		drawShape(pdf, label.Shape, pageW-25, 30, 14)
		pdf.SetFont("Arial", "", 8)
		pdf.SetXY(pageW-45, 48)
		pdf.CellFormat(40, 5, label.Shape, "", 0, "C", false, 0, "")
	}
}

// RenderManifest 渲染托盘发运清单
func RenderManifest(data ManifestData) ([]byte, error) {
	manifest := data.Normalize()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Pallet Manifest", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Pallet: %s", manifest.PalletNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Released: %s", manifest.ReleasedDate), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("DPN: %s", manifest.DPN), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Factory: %s", manifest.FactoryCode), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Units: %d", len(manifest.Systems)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(12, 7, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 7, "Service Tag", "1", 0, "C", false, 0, "")
	pdf.CellFormat(75, 7, "PPID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 7, "DOA", "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for i, sys := range manifest.Systems {
		pdf.CellFormat(12, 7, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 7, sys.ServiceTag, "1", 0, "L", false, 0, "")
		pdf.CellFormat(75, 7, sys.PPID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, sys.DOANumber, "1", 1, "L", false, 0, "")
	}
	return output(pdf)
}

// drawShape 绘制托盘形状标记
func drawShape(pdf *gofpdf.Fpdf, shape string, cx, cy, r float64) {
	pdf.SetFillColor(0, 0, 0)
	switch shape {
	case "circle":
		pdf.Circle(cx, cy, r, "F")
	case "square":
		pdf.Rect(cx-r*0.8, cy-r*0.8, r*1.6, r*1.6, "F")
	case "diamond":
		pdf.Polygon(regularPolygon(cx, cy, r, 4, -90), "F")
	case "pentagon":
		pdf.Polygon(regularPolygon(cx, cy, r, 5, -90), "F")
	case "hexagon":
		pdf.Polygon(regularPolygon(cx, cy, r, 6, 0), "F")
	case "triangle_up":
		pdf.Polygon(regularPolygon(cx, cy, r, 3, -90), "F")
	case "triangle_down":
		pdf.Polygon(regularPolygon(cx, cy, r, 3, 90), "F")
	case "triangle_left":
		pdf.Polygon(regularPolygon(cx, cy, r, 3, 180), "F")
	case "triangle_right":
		pdf.Polygon(regularPolygon(cx, cy, r, 3, 0), "F")
	case "star":
		pdf.Polygon(starPolygon(cx, cy, r, r*0.45), "F")
	}
}

func regularPolygon(cx, cy, r float64, sides int, startDeg float64) []gofpdf.PointType {
	points := make([]gofpdf.PointType, 0, sides)
	for i := 0; i < sides; i++ {
		angle := (startDeg + float64(i)*360/float64(sides)) * math.Pi / 180
		points = append(points, gofpdf.PointType{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)})
	}
	return points
}

func starPolygon(cx, cy, outer, inner float64) []gofpdf.PointType {
	points := make([]gofpdf.PointType, 0, 10)
	for i := 0; i < 10; i++ {
		radius := outer
		if i%2 == 1 {
			radius = inner
		}
		angle := (-90 + float64(i)*36) * math.Pi / 180
		points = append(points, gofpdf.PointType{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)})
	}
	return points
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
