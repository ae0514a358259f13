package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	DateLayout      = "01/02/2006"
	TimeLayout      = "15:04:05"
	CanonicalLayout = "2006-01-02 15:04:05"
)

// Keys of the fixed members of a serialized chunk.
const (
	KeyChunkID   = "ChunkID"
	KeyStartDate = "StartDate"
	KeyStartTime = "StartTime"
	KeyBattPres  = "BattPres"
	KeyPowerSrc  = "PowerSrc"
	KeyPerc      = "Perc_Time_Series"
	KeyEndDate   = "EndDate"
	KeyEndTime   = "EndTime"
	KeyTotalTime = "TotalTime"
)

var ErrMalformedDocument = errors.New("chunk: malformed chunk document")

// PercSample is a serialized PercPoint.
type PercSample struct {
	Value string `json:"value"`
	Time  string `json:"time"`
}

// Timestamp parses the sample time.
func (p PercSample) Timestamp() (time.Time, error) {
	return time.ParseInLocation(CanonicalLayout, p.Time, time.UTC)
}

// Field is one column of a serialized chunk. A collapsed field holds a
// single value that was constant over the whole chunk.
type Field struct {
	Name      string
	Values    []string
	Collapsed bool
}

// Document is the serialized, simplified form of a finalized chunk. Its JSON
// encoding keeps member order: fixed header, the columns in schema order,
// then the end markers.
type Document struct {
	ChunkID   string
	StartDate string
	StartTime string
	BattPres  string
	PowerSrc  string
	Perc      []PercSample
	Fields    []Field
	EndDate   string
	EndTime   string
	TotalTime string
}

// Simplify collapses every column whose values are all identical into a
// scalar field. The percentage time series is not affected.
func Simplify(c *Chunk) []Field {
	fields := make([]Field, len(c.Columns))
	for i, name := range c.Columns {
		series := c.Series[i]
		fields[i] = Field{Name: name, Values: series}
		if constant(series) {
			fields[i] = Field{Name: name, Values: series[:1:1], Collapsed: true}
		}
	}
	return fields
}

func constant(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// Serialize simplifies c and renders every timestamp in its canonical
// second-resolution form.
func Serialize(c *Chunk) Document {
	doc := Document{
		ChunkID:   c.ID,
		StartDate: c.Start.Format(DateLayout),
		StartTime: c.Start.Format(TimeLayout),
		BattPres:  c.BattPres,
		PowerSrc:  c.PowerSrc,
		Perc:      make([]PercSample, len(c.Perc)),
		Fields:    Simplify(c),
		EndDate:   c.End.Format(DateLayout),
		EndTime:   c.End.Format(TimeLayout),
		TotalTime: FormatDuration(c.Duration()),
	}
	for i, p := range c.Perc {
		doc.Perc[i] = PercSample{Value: p.Value, Time: p.Time.Format(CanonicalLayout)}
	}
	return doc
}

// FormatDuration renders d as H:MM:SS with unpadded hours.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// ParseDuration is the inverse of FormatDuration.
func ParseDuration(s string) (time.Duration, error) {
	var h, m, sec int64
	if _, err := fmt.Sscanf(s, "%d:%02d:%02d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// Start parses StartDate and StartTime.
func (d Document) Start() (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, d.StartDate+" "+d.StartTime, time.UTC)
}

// End parses EndDate and EndTime.
func (d Document) End() (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, d.EndDate+" "+d.EndTime, time.UTC)
}

// Field returns the column called name.
func (d Document) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Params lists the analyzable members in document order: the two state
// columns followed by every column field.
func (d Document) Params() []Field {
	out := make([]Field, 0, len(d.Fields)+2)
	out = append(out,
		Field{Name: KeyBattPres, Values: []string{d.BattPres}, Collapsed: true},
		Field{Name: KeyPowerSrc, Values: []string{d.PowerSrc}, Collapsed: true},
	)
	return append(out, d.Fields...)
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	put := func(key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	perc := d.Perc
	if perc == nil {
		perc = []PercSample{}
	}
	head := []struct {
		key string
		val any
	}{
		{KeyChunkID, d.ChunkID},
		{KeyStartDate, d.StartDate},
		{KeyStartTime, d.StartTime},
		{KeyBattPres, d.BattPres},
		{KeyPowerSrc, d.PowerSrc},
		{KeyPerc, perc},
	}
	for _, kv := range head {
		if err := put(kv.key, kv.val); err != nil {
			return nil, err
		}
	}
	for _, f := range d.Fields {
		var v any = f.Values
		if f.Collapsed && len(f.Values) == 1 {
			v = f.Values[0]
		}
		if err := put(f.Name, v); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	for _, kv := range []struct {
		key string
		val string
	}{
		{KeyEndDate, d.EndDate},
		{KeyEndTime, d.EndTime},
		{KeyTotalTime, d.TotalTime},
	} {
		if err := put(kv.key, kv.val); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", ErrMalformedDocument)
	}
	*d = Document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := d.setMember(key, raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedDocument, key, err)
		}
	}
	_, err = dec.Token()
	return err
}

func (d *Document) setMember(key string, raw json.RawMessage) error {
	var target *string
	switch key {
	case KeyChunkID:
		target = &d.ChunkID
	case KeyStartDate:
		target = &d.StartDate
	case KeyStartTime:
		target = &d.StartTime
	case KeyBattPres:
		target = &d.BattPres
	case KeyPowerSrc:
		target = &d.PowerSrc
	case KeyEndDate:
		target = &d.EndDate
	case KeyEndTime:
		target = &d.EndTime
	case KeyTotalTime:
		target = &d.TotalTime
	case KeyPerc:
		return json.Unmarshal(raw, &d.Perc)
	}
	if target != nil {
		return json.Unmarshal(raw, target)
	}
	f, err := decodeField(key, raw)
	if err != nil {
		return err
	}
	d.Fields = append(d.Fields, f)
	return nil
}

func decodeField(name string, raw json.RawMessage) (Field, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Field{}, err
		}
		values := make([]string, len(items))
		for i, item := range items {
			v, err := scalarString(item)
			if err != nil {
				return Field{}, err
			}
			values[i] = v
		}
		return Field{Name: name, Values: values}, nil
	}
	v, err := scalarString(trimmed)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Values: []string{v}, Collapsed: true}, nil
}

// scalarString accepts strings, numbers, booleans and null so files edited
// by hand still load.
func scalarString(raw json.RawMessage) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value %s", string(raw))
	}
}
