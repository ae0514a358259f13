package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"example.com/powerchunk/internal/analysis"
	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/numeric"
)

func sampleDocs() []chunk.Document {
	return []chunk.Document{
		{
			ChunkID: "c1", StartDate: "03/04/2024", StartTime: "00:00:00", BattPres: "1", PowerSrc: "AC",
			Perc:    []chunk.PercSample{{Value: "50", Time: "2024-03-04 00:00:00"}, {Value: "51", Time: "2024-03-04 00:00:10"}},
			EndDate: "03/04/2024", EndTime: "00:00:10", TotalTime: "0:00:10",
		},
		{
			ChunkID: "c2", StartDate: "03/04/2024", StartTime: "00:00:20", BattPres: "0", PowerSrc: "AC",
			Perc:    []chunk.PercSample{{Value: "49", Time: "2024-03-04 00:00:20"}},
			EndDate: "03/04/2024", EndTime: "00:00:20", TotalTime: "0:00:00",
		},
	}
}

func TestSaveSummaryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk_summary_dev.csv")
	if err := SaveSummaryCSV(path, sampleDocs()); err != nil {
		t.Fatalf("SaveSummaryCSV: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(SummaryHeader, ",") {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[2][0] != "c2" || rows[2][6] != "0" {
		t.Fatalf("second row = %v", rows[2])
	}
}

func TestSummaryCSVHeaderOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewSummaryCSV(&buf)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if strings.TrimSpace(buf.String()) != strings.Join(SummaryHeader, ",") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestSaveSummaryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk_summary_dev.xlsx")
	if err := SaveSummaryXLSX(path, sampleDocs()); err != nil {
		t.Fatalf("SaveSummaryXLSX: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	id, err := f.GetCellValue(summarySheet, "A3")
	if err != nil || id != "c2" {
		t.Fatalf("A3 = %q, %v", id, err)
	}
	rows, err := f.GetRows(percSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("perc rows = %d, want header + 3", len(rows))
	}
}

func TestAnalysisTextAndPDF(t *testing.T) {
	dir := t.TempDir()
	reports := []analysis.ChunkReport{
		{
			ChunkID: "c1", StartDate: "03/04/2024", StartTime: "00:00:00", EndDate: "03/04/2024", EndTime: "00:00:10",
			TotalTime: "0:00:10", BattPres: "1", PowerSrc: "AC",
			Entries: []analysis.Entry{
				{Param: "SOH", Kind: analysis.KindNumeric, Numeric: numeric.Analyze("SOH", []string{"0", "0"}, numeric.Range{Min: 80, Max: 100, Unit: "%"})},
				{Param: "BattStatus", Kind: analysis.KindBitfield, Decoded: []analysis.DecodedValue{{Value: "0080", Lines: []string{"0080 → Bits 3-0 (Error Code): 0x0 → OK"}}}},
			},
		},
	}

	txtPath := filepath.Join(dir, "analysis.txt")
	w, err := CreateAnalysisText(txtPath)
	if err != nil {
		t.Fatalf("CreateAnalysisText: %v", err)
	}
	if _, err := os.Stat(txtPath); !os.IsNotExist(err) {
		t.Fatalf("report must not be visible before commit")
	}
	for _, r := range reports {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	data, err := os.ReadFile(txtPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "ChunkID: c1") || !strings.Contains(string(data), analysis.Divider) {
		t.Fatalf("unexpected text report:\n%s", data)
	}

	pdfPath := filepath.Join(dir, "analysis.pdf")
	meta := PDFMeta{Name: "dev", Input: "log.txt", ChunksSha256: strings.Repeat("ab", 32), Records: 2}
	if err := SaveAnalysisPDF(pdfPath, meta, reports); err != nil {
		t.Fatalf("SaveAnalysisPDF: %v", err)
	}
	pdfData, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("ReadFile pdf: %v", err)
	}
	if !bytes.HasPrefix(pdfData, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestDigestToQR(t *testing.T) {
	if _, err := DigestToQR("  ", 0); err == nil {
		t.Fatalf("expected error for empty digest")
	}
	png, err := DigestToQR("de:ad:be:ef", 0)
	if err != nil {
		t.Fatalf("DigestToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a PNG")
	}
}

func TestRunSummaryJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	in := RunSummary{Name: "dev", Input: []string{"a.log"}, Chunks: 3, FlaggedChunks: 1}
	if err := SaveRunSummaryJSON(in, path); err != nil {
		t.Fatalf("SaveRunSummaryJSON: %v", err)
	}
	out, err := LoadRunSummaryJSON(path)
	if err != nil {
		t.Fatalf("LoadRunSummaryJSON: %v", err)
	}
	if out.Name != "dev" || out.Chunks != 3 || out.FlaggedChunks != 1 {
		t.Fatalf("loaded = %+v", out)
	}
}
