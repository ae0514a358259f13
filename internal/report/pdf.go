package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/powerchunk/internal/analysis"
	"example.com/powerchunk/internal/common"
)

// PDFMeta is the run information printed on the first page.
type PDFMeta struct {
	Name         string
	Input        string
	GeneratedAt  time.Time
	ChunksSha256 string
	Records      int64
}

// core fonts are cp1252; symbols outside it are spelled out.
var pdfSymbols = strings.NewReplacer(
	"→", "->",
	"⚠️", " [!]",
	"❗", " [?]",
)

// SaveAnalysisPDF renders the per-chunk analysis into a PDF document.
func SaveAnalysisPDF(path string, meta PDFMeta, reports []analysis.ChunkReport) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Power Chunk Analysis", false)
	pdf.SetAuthor("powerchunk", false)
	pdf.SetCreator("powerchunk", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(pdfSymbols.Replace(s)) }
	pdf.AddPage()

	addPDFTitle(pdf, "Power Chunk Analysis")
	if err := addRunSection(pdf, meta, reports, text); err != nil {
		return err
	}
	addChunkTable(pdf, reports, text)
	addChunkSections(pdf, reports, text)

	if pdf.Err() {
		return pdf.Error()
	}
	af, err := common.CreateAtomic(path)
	if err != nil {
		return err
	}
	if err := pdf.Output(af); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addRunSection(pdf *gofpdf.Fpdf, meta PDFMeta, reports []analysis.ChunkReport, text func(string) string) error {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Run")
	pdf.Ln(8)

	flagged := 0
	for _, r := range reports {
		if r.Flagged() > 0 {
			flagged++
		}
	}
	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	items := []struct {
		label string
		value string
	}{
		{label: "Device", value: emptyFallback(meta.Name, "-")},
		{label: "Input", value: emptyFallback(meta.Input, "-")},
		{label: "Generated", value: generated.Format(time.RFC3339)},
		{label: "Records", value: strconv.FormatInt(meta.Records, 10)},
		{label: "Chunks", value: strconv.Itoa(len(reports))},
		{label: "Flagged chunks", value: strconv.Itoa(flagged)},
		{label: "Chunk file SHA-256", value: emptyFallback(meta.ChunksSha256, "-")},
	}
	pdf.SetFont("Helvetica", "", 10)
	startY := pdf.GetY()
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(100, 6, text(item.value), "", "L", false)
	}
	if meta.ChunksSha256 != "" {
		png, err := DigestToQR(meta.ChunksSha256, 256)
		if err != nil {
			return fmt.Errorf("digest qr: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
		pdf.ImageOptions("digest-qr", 160, startY, 35, 35, false, opts, 0, "")
		if y := startY + 37; pdf.GetY() < y {
			pdf.SetY(y)
		}
	}
	pdf.Ln(4)
	return nil
}

func addChunkTable(pdf *gofpdf.Fpdf, reports []analysis.ChunkReport, text func(string) string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Chunks")
	pdf.Ln(9)

	headers := []string{"#", "Start", "End", "Total", "BattPres", "PowerSrc", "Flags"}
	widths := []float64{10, 40, 40, 22, 22, 28, 18}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for i, r := range reports {
		values := []string{
			strconv.Itoa(i + 1),
			r.StartDate + " " + r.StartTime,
			r.EndDate + " " + r.EndTime,
			r.TotalTime,
			r.BattPres,
			r.PowerSrc,
			strconv.Itoa(r.Flagged()),
		}
		for j := range values {
			values[j] = text(values[j])
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func addChunkSections(pdf *gofpdf.Fpdf, reports []analysis.ChunkReport, text func(string) string) {
	for i, r := range reports {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 6, fmt.Sprintf("%d. Chunk %s", i+1, r.ChunkID), "", "L", false)
		pdf.SetFont("Helvetica", "", 8)
		if len(r.Entries) == 0 {
			pdf.MultiCell(0, 4, "No defined parameters.", "", "L", false)
		}
		for _, e := range r.Entries {
			pdf.MultiCell(0, 4, text(e.Line()), "", "L", false)
		}
		pdf.Ln(3)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
