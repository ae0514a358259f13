package powerlog

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultColumns is the positional layout of the battery gauge log written by
// the device firmware. Field 0 of every line is the timestamp and is not part
// of the column list.
var DefaultColumns = []string{
	"PowerSrc",
	"BattPres",
	"Perc",
	"SOH",
	"Volt",
	"Curr",
	"Temp",
	"RemCap",
	"FullChgCap",
	"CycleCount",
	"BattStatus",
	"ChgrStatus",
	"OperationalStatus",
	"GaugeStatus",
	"SafetyStatus",
	"SafetyAlert",
	"PFStatus",
	"PFAlert",
}

var (
	ErrEmptySchema     = errors.New("powerlog: schema has no columns")
	ErrDuplicateColumn = errors.New("powerlog: duplicate column")
	ErrMissingColumn   = errors.New("powerlog: required column not in schema")
)

// Schema is the fixed, ordered column layout of a log plus the names of the
// columns that drive segmentation.
type Schema struct {
	Columns        []string
	BattPresColumn string
	PowerSrcColumn string
	PercColumn     string

	index map[string]int
}

// DefaultSchema returns a validated copy of the stock schema.
func DefaultSchema() Schema {
	s, err := NewSchema(DefaultColumns, "", "", "")
	if err != nil {
		panic(err)
	}
	return s
}

// NewSchema validates columns and resolves the special column names. Empty
// names fall back to BattPres, PowerSrc and Perc.
func NewSchema(columns []string, battPres, powerSrc, perc string) (Schema, error) {
	if len(columns) == 0 {
		return Schema{}, ErrEmptySchema
	}
	s := Schema{
		Columns:        make([]string, len(columns)),
		BattPresColumn: fallback(battPres, "BattPres"),
		PowerSrcColumn: fallback(powerSrc, "PowerSrc"),
		PercColumn:     fallback(perc, "Perc"),
		index:          make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		name := strings.TrimSpace(col)
		if name == "" {
			return Schema{}, fmt.Errorf("powerlog: column %d has no name", i)
		}
		if _, dup := s.index[name]; dup {
			return Schema{}, fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		s.Columns[i] = name
		s.index[name] = i
	}
	for _, required := range []string{s.BattPresColumn, s.PowerSrcColumn} {
		if _, ok := s.index[required]; !ok {
			return Schema{}, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}
	return s, nil
}

// Width is the number of value columns.
func (s Schema) Width() int { return len(s.Columns) }

// Index returns the position of column name within a record's values.
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// HasPerc reports whether the percentage column is part of the layout.
func (s Schema) HasPerc() bool {
	_, ok := s.index[s.PercColumn]
	return ok
}

// IsStateColumn reports whether name is one of the two columns whose value
// defines chunk identity.
func (s Schema) IsStateColumn(name string) bool {
	return name == s.BattPresColumn || name == s.PowerSrcColumn
}

func fallback(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
