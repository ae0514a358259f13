// Package analysis routes every parameter of a serialized chunk to the
// bitfield decoder or the numeric analyzer according to its definition.
package analysis

import (
	"io"
	"strings"

	"example.com/powerchunk/internal/bitfield"
	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/defs"
	"example.com/powerchunk/internal/numeric"
)

// Divider separates chunk blocks in the text report.
var Divider = strings.Repeat("-", 60)

type Kind string

const (
	KindNumeric  Kind = "numeric"
	KindBitfield Kind = "bitfield"
)

// DecodedValue is one distinct register value seen in a chunk.
type DecodedValue struct {
	Value string
	Lines []string
}

// Entry is the analysis of one parameter.
type Entry struct {
	Param   string
	Kind    Kind
	Numeric numeric.Result
	Decoded []DecodedValue
}

// Line renders the entry as one report line.
func (e Entry) Line() string {
	if e.Kind == KindNumeric {
		return e.Numeric.String()
	}
	parts := make([]string, len(e.Decoded))
	for i, d := range e.Decoded {
		parts[i] = d.Value + " → " + strings.Join(d.Lines, "; ")
	}
	return e.Param + ": " + strings.Join(parts, " | ")
}

// ChunkReport is the analysis of one chunk.
type ChunkReport struct {
	ChunkID   string
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
	TotalTime string
	BattPres  string
	PowerSrc  string
	Entries   []Entry
}

// Text joins the entry lines.
func (r ChunkReport) Text() string {
	lines := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		lines[i] = e.Line()
	}
	return strings.Join(lines, "\n")
}

// Flagged counts numeric entries with out-of-range or missing data.
func (r ChunkReport) Flagged() int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == KindNumeric && e.Numeric.Flagged() {
			n++
		}
	}
	return n
}

// Engine analyzes chunks against a fixed definition store.
type Engine struct {
	store *defs.Store
}

// NewEngine refuses an empty store so that a configuration mistake cannot
// silently produce empty reports.
func NewEngine(store *defs.Store) (*Engine, error) {
	if store.IsEmpty() {
		return nil, defs.ErrNoDefinitions
	}
	return &Engine{store: store}, nil
}

// Analyze walks the chunk members in document order. Members without a
// definition are skipped.
func (e *Engine) Analyze(doc chunk.Document) ChunkReport {
	rep := ChunkReport{
		ChunkID:   doc.ChunkID,
		StartDate: doc.StartDate,
		StartTime: doc.StartTime,
		EndDate:   doc.EndDate,
		EndTime:   doc.EndTime,
		TotalTime: doc.TotalTime,
		BattPres:  doc.BattPres,
		PowerSrc:  doc.PowerSrc,
	}
	for _, field := range doc.Params() {
		def, ok := e.store.Lookup(field.Name)
		if !ok {
			continue
		}
		switch d := def.(type) {
		case defs.Numeric:
			rep.Entries = append(rep.Entries, Entry{
				Param:   field.Name,
				Kind:    KindNumeric,
				Numeric: numeric.Analyze(field.Name, field.Values, d.Range),
			})
		case defs.Bitfield:
			rep.Entries = append(rep.Entries, Entry{
				Param:   field.Name,
				Kind:    KindBitfield,
				Decoded: decodeDistinct(field.Values, d.Table),
			})
		}
	}
	return rep
}

func decodeDistinct(values []string, table *bitfield.Table) []DecodedValue {
	seen := make(map[string]bool, len(values))
	var out []DecodedValue
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, DecodedValue{Value: v, Lines: bitfield.Decode(v, table)})
	}
	return out
}

// AnalyzeFile streams the chunk file at path through the engine.
func (e *Engine) AnalyzeFile(path string, fn func(ChunkReport) error) error {
	return chunk.EachInFile(path, func(doc chunk.Document) error {
		return fn(e.Analyze(doc))
	})
}

// WriteBlock writes one chunk block of the text report.
func WriteBlock(w io.Writer, rep ChunkReport) error {
	var b strings.Builder
	b.WriteString("ChunkID: ")
	b.WriteString(rep.ChunkID)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(rep.Text()))
	b.WriteString("\n\n")
	b.WriteString(Divider)
	b.WriteString("\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}
