// Package chunk groups telemetry records into power chunks: maximal runs of
// records that share battery presence, power source and calendar date.
package chunk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"example.com/powerchunk/internal/common"
	"example.com/powerchunk/internal/powerlog"
)

// MaxLineBytes bounds a single input line.
const MaxLineBytes = 4 << 20

var ErrLineTooLong = errors.New("chunk: input line exceeds maximum length")

// PercPoint is one sample of the percentage time series.
type PercPoint struct {
	Value string
	Time  time.Time
}

// Chunk is an open or finalized run of records. Finalized chunks are handed
// to the caller and never touched by the segmenter again.
type Chunk struct {
	ID       string
	Start    time.Time
	End      time.Time
	BattPres string
	PowerSrc string
	Records  int

	// Columns lists the accumulated columns in schema order; Series[i]
	// holds one raw value per folded record for Columns[i].
	Columns []string
	Series  [][]string
	Perc    []PercPoint
}

// Duration is End minus Start.
func (c *Chunk) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// Stats counts what the segmenter saw.
type Stats struct {
	Lines            int64
	Records          int64
	Invalid          int64
	DiscardedIdle    int64
	PaddedRecords    int64
	TruncatedRecords int64
	Chunks           int64
}

type Option func(*Segmenter)

// WithIDFunc replaces the UUID generator, mostly for tests.
func WithIDFunc(fn func() string) Option {
	return func(s *Segmenter) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithDiagnostics receives every absorbed anomaly of the input.
func WithDiagnostics(fn func(common.Diagnostic)) Option {
	return func(s *Segmenter) { s.diag = fn }
}

// WithMetrics mirrors the counters into m while the run progresses.
func WithMetrics(m *common.Metrics) Option {
	return func(s *Segmenter) { s.metrics = m }
}

// WithSource tags diagnostics with the name of the input.
func WithSource(name string) Option {
	return func(s *Segmenter) { s.source = name }
}

// Segmenter is the line-by-line state machine. It is either idle or holds
// exactly one open chunk. Not safe for concurrent use.
type Segmenter struct {
	schema  powerlog.Schema
	columns []string
	colIdx  []int
	percIdx int

	newID   func() string
	diag    func(common.Diagnostic)
	metrics *common.Metrics
	source  string

	open  *Chunk
	y     int
	m     time.Month
	d     int
	stats Stats
}

func NewSegmenter(schema powerlog.Schema, opts ...Option) *Segmenter {
	s := &Segmenter{
		schema:  schema,
		newID:   func() string { return uuid.NewString() },
		percIdx: -1,
	}
	for i, col := range schema.Columns {
		if schema.IsStateColumn(col) {
			continue
		}
		s.columns = append(s.columns, col)
		s.colIdx = append(s.colIdx, i)
	}
	if i, ok := schema.Index(schema.PercColumn); ok {
		s.percIdx = i
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the counters accumulated so far.
func (s *Segmenter) Stats() Stats { return s.stats }

// Open reports whether a chunk is currently accumulating.
func (s *Segmenter) Open() bool { return s.open != nil }

// Push feeds one line and returns the chunk it closed, if any.
func (s *Segmenter) Push(line string) *Chunk {
	s.stats.Lines++
	rec, ok := s.schema.Parse(line)
	if s.metrics != nil {
		s.metrics.AddLine(int64(len(line))+1, ok)
	}
	if !ok {
		s.stats.Invalid++
		if s.open == nil {
			s.stats.DiscardedIdle++
			if s.metrics != nil {
				s.metrics.IncDiscardedIdle()
			}
			s.report(common.DiagDiscardedIdle, "")
			return nil
		}
		s.report(common.DiagInvalidBoundary, "closed chunk "+s.open.ID)
		return s.finalize()
	}
	s.stats.Records++
	s.noteWidth(rec)

	battPres := s.schema.Value(rec, s.schema.BattPresColumn)
	powerSrc := s.schema.Value(rec, s.schema.PowerSrcColumn)
	if s.open == nil {
		s.start(rec, battPres, powerSrc)
		return nil
	}
	y, m, d := rec.Time.Date()
	if battPres != s.open.BattPres || powerSrc != s.open.PowerSrc || y != s.y || m != s.m || d != s.d {
		closed := s.finalize()
		s.start(rec, battPres, powerSrc)
		return closed
	}
	s.fold(rec)
	return nil
}

// Flush closes the open chunk at end of input.
func (s *Segmenter) Flush() *Chunk {
	if s.open == nil {
		return nil
	}
	return s.finalize()
}

func (s *Segmenter) start(rec powerlog.Record, battPres, powerSrc string) {
	c := &Chunk{
		ID:       s.newID(),
		Start:    rec.Time,
		BattPres: battPres,
		PowerSrc: powerSrc,
		Columns:  s.columns,
		Series:   make([][]string, len(s.columns)),
	}
	s.open = c
	s.y, s.m, s.d = rec.Time.Date()
	s.fold(rec)
}

func (s *Segmenter) fold(rec powerlog.Record) {
	c := s.open
	for i, idx := range s.colIdx {
		c.Series[i] = append(c.Series[i], rec.Values[idx])
	}
	if s.percIdx >= 0 {
		c.Perc = append(c.Perc, PercPoint{Value: rec.Values[s.percIdx], Time: rec.Time})
	}
	c.End = rec.Time
	c.Records++
}

func (s *Segmenter) finalize() *Chunk {
	c := s.open
	s.open = nil
	s.stats.Chunks++
	if s.metrics != nil {
		s.metrics.IncChunks()
	}
	return c
}

func (s *Segmenter) noteWidth(rec powerlog.Record) {
	if rec.Missing > 0 {
		s.stats.PaddedRecords++
		if s.metrics != nil {
			s.metrics.IncPadded()
		}
		s.report(common.DiagPaddedRow, fmt.Sprintf("padded %d missing column(s)", rec.Missing))
	}
	if rec.Extra > 0 {
		s.stats.TruncatedRecords++
		if s.metrics != nil {
			s.metrics.IncTruncated()
		}
		s.report(common.DiagTruncatedRow, fmt.Sprintf("dropped %d surplus field(s)", rec.Extra))
	}
}

func (s *Segmenter) report(kind, msg string) {
	if s.diag == nil {
		return
	}
	s.diag(common.Diagnostic{File: s.source, Line: s.stats.Lines, Kind: kind, Message: msg})
}

// Segment reads r line by line and hands every finalized chunk to emit in
// input order. An error from emit or from reading aborts the run.
func Segment(r io.Reader, schema powerlog.Schema, emit func(*Chunk) error, opts ...Option) (Stats, error) {
	seg := NewSegmenter(schema, opts...)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineBytes)
	for sc.Scan() {
		if c := seg.Push(sc.Text()); c != nil {
			if err := emit(c); err != nil {
				return seg.Stats(), err
			}
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return seg.Stats(), fmt.Errorf("%w (line %d)", ErrLineTooLong, seg.Stats().Lines+1)
		}
		return seg.Stats(), err
	}
	if c := seg.Flush(); c != nil {
		if err := emit(c); err != nil {
			return seg.Stats(), err
		}
	}
	return seg.Stats(), nil
}
