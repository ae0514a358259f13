// Package numeric classifies a series of raw telemetry values against an
// expected range.
package numeric

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Range is the expected band of a numeric parameter.
type Range struct {
	Min  float64
	Max  float64
	Unit string
}

// Status tells whether a Result carries statistics.
type Status int

const (
	StatusOK Status = iota
	// StatusNoData means the input series was empty.
	StatusNoData
	// StatusNoValid means the series had entries but none were numeric.
	StatusNoValid
)

const (
	warnMark    = "⚠️"
	missingMark = "❗"
	missingNote = " (⚠️ Data may be missing or uninitialized)"
)

var numericValue = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`)

// Result holds the classified statistics of one parameter in one chunk.
type Result struct {
	Name   string
	Status Status
	Count  int
	Min    float64
	Max    float64
	Avg    float64
	Range  Range

	// Missing is set when the series is all zeros. It overrides the range
	// flags below.
	Missing bool
	MinOut  bool
	MaxOut  bool
	AvgOut  bool
}

// Analyze computes min, max and average of the numeric entries of values and
// flags them against r. Non-numeric entries are dropped.
func Analyze(name string, values []string, r Range) Result {
	res := Result{Name: name, Range: r}
	if len(values) == 0 {
		res.Status = StatusNoData
		return res
	}
	var sum float64
	for _, raw := range values {
		v, ok := parse(raw)
		if !ok {
			continue
		}
		if res.Count == 0 || v < res.Min {
			res.Min = v
		}
		if res.Count == 0 || v > res.Max {
			res.Max = v
		}
		sum += v
		res.Count++
	}
	if res.Count == 0 {
		res.Status = StatusNoValid
		return res
	}
	res.Avg = math.Round(sum/float64(res.Count)*100) / 100
	if res.Min == 0 && res.Max == 0 {
		res.Missing = true
		return res
	}
	res.MinOut = r.outside(res.Min)
	res.MaxOut = r.outside(res.Max)
	res.AvgOut = r.outside(res.Avg)
	return res
}

func (r Range) outside(v float64) bool {
	return v < r.Min || v > r.Max
}

// parse accepts the raw token only. Padded values such as " 85" are not
// numeric entries.
func parse(raw string) (float64, bool) {
	if !numericValue.MatchString(raw) {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Flagged reports whether any statistic needs attention.
func (r Result) Flagged() bool {
	return r.Missing || r.MinOut || r.MaxOut || r.AvgOut
}

// String renders the report line, for example
//
//	SOH: min=85, max=95, avg=90 % (Expected: 80–100 %)
func (r Result) String() string {
	switch r.Status {
	case StatusNoData:
		return r.Name + ": No data available"
	case StatusNoValid:
		return r.Name + ": No valid numeric entries"
	}
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(": ")
	b.WriteString(stat("min", r.Min, r.Missing, r.MinOut))
	b.WriteString(", ")
	b.WriteString(stat("max", r.Max, r.Missing, r.MaxOut))
	b.WriteString(", ")
	b.WriteString(stat("avg", r.Avg, r.Missing, r.AvgOut))
	if r.Range.Unit != "" {
		b.WriteString(" ")
		b.WriteString(r.Range.Unit)
	}
	b.WriteString(" (Expected: ")
	b.WriteString(FormatNumber(r.Range.Min))
	b.WriteString("–")
	b.WriteString(FormatNumber(r.Range.Max))
	if r.Range.Unit != "" {
		b.WriteString(" ")
		b.WriteString(r.Range.Unit)
	}
	b.WriteString(")")
	if r.Missing {
		b.WriteString(missingNote)
	}
	return b.String()
}

func stat(label string, v float64, missing, out bool) string {
	s := label + "=" + FormatNumber(v)
	switch {
	case missing:
		s += missingMark
	case out:
		s += warnMark
	}
	return s
}

// FormatNumber prints v with the shortest exact decimal representation.
func FormatNumber(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
