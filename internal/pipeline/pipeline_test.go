package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/common"
	"example.com/powerchunk/internal/config"
	"example.com/powerchunk/internal/defs"
	"example.com/powerchunk/internal/manifest"
	"example.com/powerchunk/internal/powerlog"
	"example.com/powerchunk/internal/report"
)

// line builds a record in the stock 18 column layout.
func line(ts, powerSrc, battPres, perc string) string {
	return strings.Join([]string{ts, powerSrc, battPres, perc,
		"95", "12100", "-250", "30", "4000", "4200", "12",
		"0080", "0000", "0000", "0000", "0000", "0000", "0000", "0000"}, ",")
}

var sampleLog = []string{
	"header,not,a,record",
	line("01/02/2024 10:00:00", "AC", "1", "50"),
	line("01/02/2024 10:00:10", "AC", "1", "51"),
	line("01/02/2024 10:00:20", "DC", "1", "51"),
	"garbage",
	line("01/02/2024 10:01:00", "DC", "1", "49"),
}

func writeLog(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func testJob(t *testing.T, name string) Job {
	t.Helper()
	store, err := defs.Default()
	if err != nil {
		t.Fatalf("defs.Default: %v", err)
	}
	root := t.TempDir()
	in := filepath.Join(root, name+".txt")
	writeLog(t, in, sampleLog)
	return Job{
		Name:        name,
		Input:       in,
		OutputDir:   filepath.Join(root, "out"),
		Schema:      powerlog.DefaultSchema(),
		Definitions: store,
	}
}

func TestRunPublishesArtifacts(t *testing.T) {
	job := testJob(t, "dev1")
	job.Exports = config.ExportConfig{XLSX: true, PDF: true}
	job.Metrics = common.NewMetrics()

	res, err := Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	paths := job.Paths()
	for _, p := range []string{paths.Chunks, paths.SummaryCSV, paths.SummaryXLSX, paths.Diagnostics, paths.Analysis, paths.PDF, paths.RunSummary, paths.Manifest} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing artifact %s: %v", p, err)
		}
	}

	// the invalid line closes the DC chunk, so three chunks are emitted
	docs, err := chunk.LoadFile(paths.Chunks)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(docs))
	}
	if docs[0].PowerSrc != "AC" || docs[1].PowerSrc != "DC" || docs[2].PowerSrc != "DC" {
		t.Fatalf("unexpected power sources: %s %s %s", docs[0].PowerSrc, docs[1].PowerSrc, docs[2].PowerSrc)
	}
	if res.Segment.Stats.Records != 4 || res.Segment.Stats.DiscardedIdle != 1 {
		t.Fatalf("unexpected stats: %+v", res.Segment.Stats)
	}
	if res.Analyze.Chunks != 3 {
		t.Fatalf("analyzed %d chunks", res.Analyze.Chunks)
	}

	text, err := os.ReadFile(paths.Analysis)
	if err != nil {
		t.Fatalf("ReadFile analysis: %v", err)
	}
	if got := strings.Count(string(text), "ChunkID: "); got != 3 {
		t.Fatalf("analysis has %d blocks", got)
	}
	if !strings.Contains(string(text), "SOH: min=95, max=95, avg=95") {
		t.Fatalf("analysis lacks SOH line:\n%s", text)
	}

	diags, err := common.ReadJournal(paths.Diagnostics)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %+v", diags)
	}

	sum, err := report.LoadRunSummaryJSON(paths.RunSummary)
	if err != nil {
		t.Fatalf("LoadRunSummaryJSON: %v", err)
	}
	if sum.Chunks != 3 || sum.ChunksSha256 != res.Segment.ChunksSha256 {
		t.Fatalf("unexpected run summary: %+v", sum)
	}

	m, err := manifest.Load(paths.Manifest)
	if err != nil {
		t.Fatalf("manifest.Load: %v", err)
	}
	if len(m.Items) != 7 {
		t.Fatalf("manifest has %d items", len(m.Items))
	}
	if err := manifest.Verify(job.OutputDir, m); err != nil {
		t.Fatalf("manifest.Verify: %v", err)
	}
	if snap := job.Metrics.Snapshot(); snap.Chunks != 3 || snap.Lines != int64(len(sampleLog)) {
		t.Fatalf("unexpected metrics: %+v", snap)
	}
}

type memSink struct {
	failAt    int
	commitErr error
	docs      []chunk.Document
	committed bool
	rolled    bool
}

func (s *memSink) BeginRun(ctx context.Context, name string) (chunk.Batch, error) {
	return s, nil
}

func (s *memSink) Write(ctx context.Context, doc chunk.Document) error {
	if s.failAt > 0 && len(s.docs)+1 == s.failAt {
		return errors.New("sink down")
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *memSink) Commit() error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = true
	return nil
}

func (s *memSink) Rollback() error { s.rolled = true; return nil }

func TestSegmentSink(t *testing.T) {
	job := testJob(t, "sink")
	sink := &memSink{}
	job.Sink = sink
	if _, err := Segment(context.Background(), job); err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(sink.docs) != 3 || !sink.committed || sink.rolled {
		t.Fatalf("unexpected sink state: docs=%d committed=%v rolled=%v", len(sink.docs), sink.committed, sink.rolled)
	}
}

func TestSegmentFailureLeavesNoArtifacts(t *testing.T) {
	job := testJob(t, "broken")
	sink := &memSink{failAt: 2}
	job.Sink = sink
	job.Exports.XLSX = true
	if _, err := Segment(context.Background(), job); err == nil {
		t.Fatalf("expected sink error")
	}
	if !sink.rolled || sink.committed {
		t.Fatalf("sink not rolled back")
	}
	entries, err := os.ReadDir(job.OutputDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("output dir not empty: %v", names)
	}
}

func TestSegmentSinkCommitFailureRestoresArtifacts(t *testing.T) {
	job := testJob(t, "restore")
	job.Exports.XLSX = true
	if _, err := Segment(context.Background(), job); err != nil {
		t.Fatalf("first Segment: %v", err)
	}
	paths := job.Paths()
	before := map[string][]byte{}
	for _, p := range []string{paths.Chunks, paths.SummaryCSV, paths.SummaryXLSX, paths.Diagnostics} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		before[p] = data
	}

	writeLog(t, job.Input, sampleLog[:3])
	sink := &memSink{commitErr: errors.New("commit refused")}
	job.Sink = sink
	if _, err := Segment(context.Background(), job); err == nil || !strings.Contains(err.Error(), "commit refused") {
		t.Fatalf("expected sink commit error, got %v", err)
	}
	if !sink.rolled {
		t.Fatalf("sink not rolled back")
	}
	for p, want := range before {
		got, err := os.ReadFile(p)
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("%s changed after failed run: %v", filepath.Base(p), err)
		}
	}
	entries, _ := os.ReadDir(job.OutputDir)
	if len(entries) != len(before) {
		t.Fatalf("entries = %d, want %d", len(entries), len(before))
	}
}

func TestSegmentCancelled(t *testing.T) {
	job := testJob(t, "cancel")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Segment(ctx, job)
	if !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if _, err := os.Stat(job.Paths().Chunks); !os.IsNotExist(err) {
		t.Fatalf("chunks published after cancellation: %v", err)
	}
}

func TestSegmentRotatedDirectory(t *testing.T) {
	job := testJob(t, "rotated")
	dir := filepath.Join(t.TempDir(), "logs")
	writeLog(t, filepath.Join(dir, "PowerlogFile.1"), []string{line("01/02/2024 09:00:00", "AC", "1", "40")})
	writeLog(t, filepath.Join(dir, "PowerlogFile"), []string{line("01/02/2024 09:00:10", "AC", "1", "41")})
	job.Input, job.InputDir = "", dir

	res, err := Segment(context.Background(), job)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(res.Inputs) != 2 || filepath.Base(res.Inputs[1]) != "PowerlogFile" {
		t.Fatalf("unexpected inputs: %v", res.Inputs)
	}
	docs, err := chunk.LoadFile(res.ChunksPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 1 || docs[0].StartTime != "09:00:00" || docs[0].EndTime != "09:00:10" {
		t.Fatalf("unexpected chunks: %+v", docs)
	}
}

func TestJobValidation(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Job)
		want error
	}{
		{"no name", func(j *Job) { j.Name = " " }, ErrNoName},
		{"no input", func(j *Job) { j.Input = "" }, ErrNoInput},
		{"both inputs", func(j *Job) { j.InputDir = "x" }, ErrNoInput},
		{"no schema", func(j *Job) { j.Schema = powerlog.Schema{} }, powerlog.ErrEmptySchema},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := testJob(t, "v")
			tc.mod(&job)
			if _, err := Segment(context.Background(), job); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAnalyzeWithoutDefinitions(t *testing.T) {
	job := testJob(t, "nodefs")
	res, err := Segment(context.Background(), job)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	job.Definitions = nil
	if _, err := Analyze(context.Background(), job, res.ChunksPath); !errors.Is(err, defs.ErrNoDefinitions) {
		t.Fatalf("expected ErrNoDefinitions, got %v", err)
	}
	if _, err := os.Stat(job.Paths().Analysis); !os.IsNotExist(err) {
		t.Fatalf("analysis published without definitions")
	}
}
