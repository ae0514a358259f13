package powerlog

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDiscoverOrdersSegments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "PowerlogFile"), "live\n")
	writeFile(t, filepath.Join(dir, "PowerlogFile.1"), "one\n")
	writeGzip(t, filepath.Join(dir, "PowerlogFile.1.gz"), "stale\n")
	writeGzip(t, filepath.Join(dir, "PowerlogFile.10.gz"), "ten\n")
	writeGzip(t, filepath.Join(dir, "PowerlogFile.2.gz"), "two\n")
	writeFile(t, filepath.Join(dir, "messages"), "ignored\n")

	paths, err := Discover(dir, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	want := []string{"PowerlogFile.1", "PowerlogFile.2.gz", "PowerlogFile.10.gz", "PowerlogFile"}
	if len(names) != len(want) {
		t.Fatalf("Discover = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Discover = %v, want %v", names, want)
		}
	}
}

func TestDiscoverEmpty(t *testing.T) {
	_, err := Discover(t.TempDir(), "")
	if !errors.Is(err, ErrNoRotatedLogs) {
		t.Fatalf("expected ErrNoRotatedLogs, got %v", err)
	}
}

func TestOpenMergedConcatenates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "PowerlogFile.1")
	b := filepath.Join(dir, "PowerlogFile.2.gz")
	c := filepath.Join(dir, "PowerlogFile")
	writeFile(t, a, "a1\na2")
	writeGzip(t, b, "b1\n")
	writeFile(t, c, "c1\n")

	rc, err := OpenMerged([]string{a, b, c})
	if err != nil {
		t.Fatalf("OpenMerged: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got, want := string(data), "a1\na2\nb1\nc1\n"; got != want {
		t.Fatalf("merged = %q, want %q", got, want)
	}
}
