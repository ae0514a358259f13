package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildSaveVerify(t *testing.T) {
	dir := t.TempDir()
	chunks := filepath.Join(dir, "chunks_dev.json")
	csvPath := filepath.Join(dir, "chunk_summary_dev.csv")
	if err := os.WriteFile(chunks, []byte("[]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(csvPath, []byte("ChunkID\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := Build(dir, []string{chunks, csvPath})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Items) != 2 || m.Items[0].Type != "chunks" || m.Items[1].Type != "summary" {
		t.Fatalf("items = %+v", m.Items)
	}
	if m.Items[0].Path != "chunks_dev.json" || m.Items[0].Size != 3 {
		t.Fatalf("item = %+v", m.Items[0])
	}
	out := filepath.Join(dir, "manifest_dev.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Verify(dir, loaded); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := os.WriteFile(chunks, []byte("[{}]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Verify(dir, loaded); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}
}
