package analysis

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/defs"
)

const testDefs = `
parameters:
  SOH: {type: numeric, min: 80, max: 100, unit: "%"}
  Volt: {type: numeric, min: 10000, max: 13000, unit: mV}
  BattStatus: {type: bitfield, table: BatteryStatus}
bitfields:
  BatteryStatus:
    bits:
      7: {name: Fault, description: Fault present}
    errorCodes:
      0: OK
`

func testEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := defs.Parse("test.yaml", []byte(testDefs))
	if err != nil {
		t.Fatalf("defs.Parse: %v", err)
	}
	eng, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func testDocument() chunk.Document {
	return chunk.Document{
		ChunkID:   "c1",
		StartDate: "03/04/2024",
		StartTime: "00:00:00",
		BattPres:  "1",
		PowerSrc:  "AC",
		Fields: []chunk.Field{
			{Name: "BattStatus", Values: []string{"0080", "0080", "0081", "0080"}},
			{Name: "Unknown", Values: []string{"1"}, Collapsed: true},
			{Name: "SOH", Values: []string{"85", "90", "95"}},
			{Name: "Volt", Values: []string{"0"}, Collapsed: true},
		},
		EndDate:   "03/04/2024",
		EndTime:   "00:00:20",
		TotalTime: "0:00:20",
	}
}

func TestAnalyzeDispatchesInDocumentOrder(t *testing.T) {
	rep := testEngine(t).Analyze(testDocument())
	if len(rep.Entries) != 3 {
		t.Fatalf("entries = %d, want 3 (undefined params skipped)", len(rep.Entries))
	}
	want := []struct {
		param string
		kind  Kind
	}{
		{"BattStatus", KindBitfield},
		{"SOH", KindNumeric},
		{"Volt", KindNumeric},
	}
	for i, w := range want {
		if rep.Entries[i].Param != w.param || rep.Entries[i].Kind != w.kind {
			t.Fatalf("entry %d = %s/%s, want %s/%s", i, rep.Entries[i].Param, rep.Entries[i].Kind, w.param, w.kind)
		}
	}
}

func TestBitfieldValuesAreDeduplicated(t *testing.T) {
	rep := testEngine(t).Analyze(testDocument())
	bits := rep.Entries[0]
	if len(bits.Decoded) != 2 || bits.Decoded[0].Value != "0080" || bits.Decoded[1].Value != "0081" {
		t.Fatalf("decoded = %+v", bits.Decoded)
	}
	want := "BattStatus: 0080 → 0080 → Bit 7 (Fault): Fault present | Bits 3-0 (Error Code): 0x0 → OK" +
		" | 0081 → 0081 → Bit 7 (Fault): Fault present | Bits 3-0 (Error Code): 0x1 → Unknown error code"
	if got := bits.Line(); got != want {
		t.Fatalf("Line() =\n%s\nwant\n%s", got, want)
	}
}

func TestReportTextAndFlags(t *testing.T) {
	rep := testEngine(t).Analyze(testDocument())
	text := rep.Text()
	if !strings.Contains(text, "SOH: min=85, max=95, avg=90 % (Expected: 80–100 %)") {
		t.Fatalf("missing SOH line in:\n%s", text)
	}
	if !strings.Contains(text, "Volt: min=0❗") {
		t.Fatalf("all-zero Volt must be marked missing:\n%s", text)
	}
	if rep.Flagged() != 1 {
		t.Fatalf("Flagged = %d, want 1", rep.Flagged())
	}
}

func TestWriteBlock(t *testing.T) {
	rep := testEngine(t).Analyze(testDocument())
	var buf bytes.Buffer
	if err := WriteBlock(&buf, rep); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "ChunkID: c1\n\n") {
		t.Fatalf("unexpected block header: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n"+Divider+"\n\n") {
		t.Fatalf("unexpected block footer: %q", out)
	}
	if len(Divider) != 60 {
		t.Fatalf("divider length = %d", len(Divider))
	}
}

func TestNewEngineRejectsEmptyStore(t *testing.T) {
	if _, err := NewEngine(nil); !errors.Is(err, defs.ErrNoDefinitions) {
		t.Fatalf("expected ErrNoDefinitions, got %v", err)
	}
}

func TestStateColumnsCanBeDefined(t *testing.T) {
	store, err := defs.Parse("state.yaml", []byte("parameters:\n  BattPres: {type: numeric, min: 0, max: 1}\n"))
	if err != nil {
		t.Fatalf("defs.Parse: %v", err)
	}
	eng, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rep := eng.Analyze(testDocument())
	if len(rep.Entries) != 1 || rep.Entries[0].Line() != "BattPres: min=1, max=1, avg=1 (Expected: 0–1)" {
		t.Fatalf("entries = %+v", rep.Entries)
	}
}
