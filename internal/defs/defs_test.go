package defs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
parameters:
  SOH: {type: numeric, min: 80, max: 100, unit: "%", description: State of Health}
  BattStatus: {type: bitfield, table: BatteryStatus}
bitfields:
  BatteryStatus:
    bits:
      7: {name: Fault, description: Fault present}
      15: {name: OCA, description: Over Charged Alarm}
    errorCodes:
      0: OK
`

func TestParseResolvesUnion(t *testing.T) {
	store, err := Parse("sample.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def, ok := store.Lookup("SOH")
	if !ok {
		t.Fatalf("SOH not defined")
	}
	num, ok := def.(Numeric)
	if !ok {
		t.Fatalf("SOH resolved to %T, want Numeric", def)
	}
	if num.Range.Min != 80 || num.Range.Max != 100 || num.Range.Unit != "%" {
		t.Fatalf("SOH range = %+v", num.Range)
	}
	def, _ = store.Lookup("BattStatus")
	bf, ok := def.(Bitfield)
	if !ok {
		t.Fatalf("BattStatus resolved to %T, want Bitfield", def)
	}
	if bf.Table.Bits[7].Name != "Fault" || bf.Table.ErrorCodes[0] != "OK" {
		t.Fatalf("unexpected table %+v", bf.Table)
	}
	if _, ok := store.Lookup("Volt"); ok {
		t.Fatalf("Volt must be undefined")
	}
	if names := store.Names(); len(names) != 2 || names[0] != "BattStatus" {
		t.Fatalf("Names = %v", names)
	}
}

func TestParseRejectsBrokenFiles(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "empty document", doc: "", want: ErrNoDefinitions},
		{name: "no parameters", doc: "parameters: {}\n", want: ErrNoDefinitions},
		{name: "unknown type", doc: "parameters:\n  SOH: {type: fancy, min: 1, max: 2}\n", want: ErrSchema},
		{name: "min above max", doc: "parameters:\n  SOH: {type: numeric, min: 100, max: 80}\n", want: ErrSchema},
		{name: "missing max", doc: "parameters:\n  SOH: {type: numeric, min: 1}\n", want: ErrSchema},
		{name: "unknown top level key", doc: "parameters:\n  SOH: {type: numeric, min: 1, max: 2}\nextra: 1\n", want: ErrSchema},
		{name: "bit out of range", doc: "parameters:\n  S: {type: bitfield, table: T}\nbitfields:\n  T:\n    bits:\n      3: {name: X, description: y}\n", want: ErrSchema},
		{name: "error code out of range", doc: "parameters:\n  S: {type: bitfield, table: T}\nbitfields:\n  T:\n    errorCodes:\n      16: nope\n", want: ErrSchema},
		{name: "dangling table", doc: "parameters:\n  S: {type: bitfield, table: Missing}\n", want: ErrUnknownTable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.name+".yaml", []byte(tc.doc))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Parse error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFromFileValidatesWithoutSchema(t *testing.T) {
	lo, hi := 10.0, 1.0
	_, err := FromFile(File{Parameters: map[string]ParamEntry{"X": {Type: "numeric", Min: &lo, Max: &hi}}})
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	_, err = FromFile(File{
		Parameters: map[string]ParamEntry{"S": {Type: "bitfield", Table: "T"}},
		Bitfields:  map[string]TableEntry{"T": {Bits: map[string]BitEntry{"16": {Name: "X"}}}},
	})
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for bit 16, got %v", err)
	}
}

func TestDefaultDefinitions(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, name := range []string{"SOH", "Volt", "BattStatus", "SafetyAlert", "PFStatus"} {
		if _, ok := store.Lookup(name); !ok {
			t.Fatalf("%s missing from stock definitions", name)
		}
	}
	other, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if store == other {
		t.Fatalf("Default must build a fresh store")
	}
}

func TestEnsureLoaded(t *testing.T) {
	dir := t.TempDir()
	if _, err := EnsureLoaded(dir); err == nil {
		t.Fatalf("expected directory error")
	}
	path := filepath.Join(dir, "defs.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := EnsureLoaded(path)
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if store.IsEmpty() {
		t.Fatalf("store must not be empty")
	}
	if _, err := EnsureLoaded(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	store, err = EnsureLoaded("")
	if err != nil || store.IsEmpty() {
		t.Fatalf("empty path must fall back to stock definitions: %v", err)
	}
}
