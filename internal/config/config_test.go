package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadResolvesPathsAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "powerchunk.yaml")
	doc := `deviceName: pump-7
definitions: defs/definitions.yaml
outputDir: results
exports:
  xlsx: true
schema:
  columns: [PowerSrc, BattPres, Perc, SOH, Volt, Curr, Temp, BattStatus, RemCap]
logs:
  directory: logs
  compress: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeviceName != "pump-7" {
		t.Fatalf("DeviceName = %q", cfg.DeviceName)
	}
	if cfg.Definitions != filepath.Join(dir, "defs", "definitions.yaml") {
		t.Fatalf("Definitions = %q", cfg.Definitions)
	}
	if cfg.OutputDir != filepath.Join(dir, "results") || cfg.Logs.Directory != filepath.Join(dir, "logs") {
		t.Fatalf("paths = %q %q", cfg.OutputDir, cfg.Logs.Directory)
	}
	if cfg.Concurrency != runtime.NumCPU() || cfg.Logs.MaxSizeMB != 25 || !cfg.Logs.Compress || !cfg.Exports.XLSX {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	schema, err := cfg.BuildSchema()
	if err != nil {
		t.Fatalf("BuildSchema: %v", err)
	}
	if schema.Width() != 9 || schema.PercColumn != "Perc" {
		t.Fatalf("schema = %+v", schema)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("outputdir: x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestDefaultSchema(t *testing.T) {
	schema, err := Default().BuildSchema()
	if err != nil {
		t.Fatalf("BuildSchema: %v", err)
	}
	if schema.Width() != 18 {
		t.Fatalf("Width = %d, want 18", schema.Width())
	}
}
