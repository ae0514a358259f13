package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/common"
)

// SummaryHeader is the header row of the chunk summary table.
var SummaryHeader = []string{"ChunkID", "StartDate", "StartTime", "EndDate", "EndTime", "TotalTime", "BattPres", "PowerSrc"}

func summaryRow(doc chunk.Document) []string {
	return []string{doc.ChunkID, doc.StartDate, doc.StartTime, doc.EndDate, doc.EndTime, doc.TotalTime, doc.BattPres, doc.PowerSrc}
}

// SummaryCSV writes the chunk summary incrementally.
type SummaryCSV struct {
	w       *csv.Writer
	started bool
}

func NewSummaryCSV(w io.Writer) *SummaryCSV {
	return &SummaryCSV{w: csv.NewWriter(w)}
}

// Write appends one chunk row, emitting the header first.
func (s *SummaryCSV) Write(doc chunk.Document) error {
	if !s.started {
		if err := s.w.Write(SummaryHeader); err != nil {
			return err
		}
		s.started = true
	}
	return s.w.Write(summaryRow(doc))
}

// Close writes the header if no row was written and flushes.
func (s *SummaryCSV) Close() error {
	if !s.started {
		if err := s.w.Write(SummaryHeader); err != nil {
			return err
		}
		s.started = true
	}
	s.w.Flush()
	return s.w.Error()
}

// SummaryXLSX accumulates chunk rows into a workbook with a summary sheet and
// a sheet of all percentage samples.
type SummaryXLSX struct {
	f       *excelize.File
	row     int
	percRow int
}

const (
	summarySheet = "summary"
	percSheet    = "perc"
)

func NewSummaryXLSX() (*SummaryXLSX, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(percSheet); err != nil {
		return nil, err
	}
	s := &SummaryXLSX{f: f, row: 1, percRow: 1}
	if err := s.setRow(summarySheet, s.row, SummaryHeader); err != nil {
		return nil, err
	}
	if err := s.setRow(percSheet, s.percRow, []string{"ChunkID", "Time", "Value"}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SummaryXLSX) setRow(sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return s.f.SetSheetRow(sheet, cell, &vals)
}

// Write adds one chunk to both sheets.
func (s *SummaryXLSX) Write(doc chunk.Document) error {
	s.row++
	if err := s.setRow(summarySheet, s.row, summaryRow(doc)); err != nil {
		return fmt.Errorf("xlsx summary row %d: %w", s.row, err)
	}
	for _, p := range doc.Perc {
		s.percRow++
		if err := s.setRow(percSheet, s.percRow, []string{doc.ChunkID, p.Time, p.Value}); err != nil {
			return fmt.Errorf("xlsx perc row %d: %w", s.percRow, err)
		}
	}
	return nil
}

// WriteTo serializes the workbook into w.
func (s *SummaryXLSX) WriteTo(w io.Writer) (int64, error) {
	return s.f.WriteTo(w)
}

// Save writes the workbook atomically to path.
func (s *SummaryXLSX) Save(path string) error {
	defer s.f.Close()
	af, err := common.CreateAtomic(path)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(af); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

// Discard releases the workbook without writing it.
func (s *SummaryXLSX) Discard() {
	s.f.Close()
}

// SaveSummaryCSV writes docs as a CSV table to path.
func SaveSummaryCSV(path string, docs []chunk.Document) error {
	af, err := common.CreateAtomic(path)
	if err != nil {
		return err
	}
	w := NewSummaryCSV(af)
	for _, doc := range docs {
		if err := w.Write(doc); err != nil {
			af.Abort()
			return err
		}
	}
	if err := w.Close(); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

// SaveSummaryXLSX writes docs as a workbook to path.
func SaveSummaryXLSX(path string, docs []chunk.Document) error {
	x, err := NewSummaryXLSX()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := x.Write(doc); err != nil {
			x.Discard()
			return err
		}
	}
	return x.Save(path)
}
