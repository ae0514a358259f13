package powerlog

import (
	"strings"
	"time"
)

const (
	// TimestampLayout is the on-device timestamp format. Single digit month,
	// day and hour are accepted as well.
	TimestampLayout = "01/02/2006 15:04:05"
	parseLayout     = "1/2/2006 15:04:05"

	// MinFields is the smallest number of comma separated fields a line
	// needs to count as a record.
	MinFields = 10
)

// Record is one parsed log line.
type Record struct {
	Time   time.Time
	Values []string
	// Missing is the number of trailing columns that were absent from the
	// line and padded with "". Extra is the number of surplus fields that
	// were dropped.
	Missing int
	Extra   int
}

// ParseTimestamp parses a device timestamp. Times carry no zone and are
// returned in UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(parseLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsValid reports whether line is a telemetry record: at least MinFields
// comma separated fields and a parseable timestamp in field 0.
func IsValid(line string) bool {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < MinFields {
		return false
	}
	_, ok := ParseTimestamp(fields[0])
	return ok
}

// Parse validates line and maps its fields onto the schema. The second
// result is false for lines that are not records; such lines never produce a
// partially filled Record.
func (s Schema) Parse(line string) (Record, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < MinFields {
		return Record{}, false
	}
	ts, ok := ParseTimestamp(fields[0])
	if !ok {
		return Record{}, false
	}
	rec := Record{Time: ts, Values: make([]string, s.Width())}
	values := fields[1:]
	n := copy(rec.Values, values)
	if n < s.Width() {
		rec.Missing = s.Width() - n
	}
	if len(values) > s.Width() {
		rec.Extra = len(values) - s.Width()
	}
	return rec, true
}

// Value returns the raw value of column name.
func (s Schema) Value(rec Record, name string) string {
	i, ok := s.index[name]
	if !ok || i >= len(rec.Values) {
		return ""
	}
	return rec.Values[i]
}
