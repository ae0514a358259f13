package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"example.com/powerchunk/internal/analysis"
	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/common"
	"example.com/powerchunk/internal/manifest"
	"example.com/powerchunk/internal/powerlog"
	"example.com/powerchunk/internal/report"
)

// SegmentResult describes the published chunk artifacts of a job.
type SegmentResult struct {
	Inputs       []string
	Stats        chunk.Stats
	ChunksPath   string
	ChunksSha256 string
	Diagnostics  int64
	Artifacts    []string
	StartedAt    time.Time
	Elapsed      time.Duration
}

// AnalyzeResult describes the published analysis artifacts of a job.
type AnalyzeResult struct {
	Chunks    int
	Flagged   int
	Artifacts []string
	Elapsed   time.Duration
}

// RunResult is the outcome of a full run of one job.
type RunResult struct {
	Name         string
	Segment      SegmentResult
	Analyze      AnalyzeResult
	SummaryPath  string
	ManifestPath string
	Err          error
}

// ctxReader stops reading once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func openInputs(paths []string) (io.ReadCloser, int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, 0, err
		}
		total += info.Size()
	}
	if len(paths) == 1 {
		rc, err := powerlog.Open(paths[0])
		return rc, total, err
	}
	rc, err := powerlog.OpenMerged(paths)
	return rc, total, err
}

// Segment streams the job input through the segmenter and publishes the chunk
// file, the summary table(s) and the diagnostics journal. Nothing is published
// unless every artifact and the optional sink succeed.
func Segment(ctx context.Context, job Job) (res SegmentResult, err error) {
	res.StartedAt = time.Now().UTC()
	defer func() {
		res.Elapsed = time.Since(res.StartedAt)
		job.Recorder.ObserveSegment(job.Name, res.Stats, res.Elapsed, err)
	}()
	if err := job.validate(); err != nil {
		return res, err
	}
	inputs, err := job.inputs()
	if err != nil {
		return res, err
	}
	res.Inputs = inputs
	in, total, err := openInputs(inputs)
	if err != nil {
		return res, err
	}
	defer in.Close()
	if job.Metrics != nil {
		job.Metrics.SetTotalBytes(total)
		job.Metrics.Start()
		defer job.Metrics.Stop()
	}

	paths := job.Paths()
	var pending []*common.AtomicFile
	published := false
	defer func() {
		if !published {
			for _, af := range pending {
				af.Abort()
			}
		}
	}()
	create := func(path string) (*common.AtomicFile, error) {
		af, err := common.CreateAtomic(path)
		if err != nil {
			return nil, err
		}
		pending = append(pending, af)
		return af, nil
	}

	chunksFile, err := create(paths.Chunks)
	if err != nil {
		return res, err
	}
	csvFile, err := create(paths.SummaryCSV)
	if err != nil {
		return res, err
	}
	diagFile, err := create(paths.Diagnostics)
	if err != nil {
		return res, err
	}
	docs := chunk.NewWriter(chunksFile)
	csvBuf := bufio.NewWriter(csvFile)
	summary := report.NewSummaryCSV(csvBuf)
	journal := common.NewJournal(diagFile)

	var xlsx *report.SummaryXLSX
	var xlsxFile *common.AtomicFile
	if job.Exports.XLSX {
		if xlsxFile, err = create(paths.SummaryXLSX); err != nil {
			return res, err
		}
		if xlsx, err = report.NewSummaryXLSX(); err != nil {
			return res, err
		}
		defer xlsx.Discard()
	}

	var batch chunk.Batch
	if job.Sink != nil {
		if batch, err = job.Sink.BeginRun(ctx, job.Name); err != nil {
			return res, fmt.Errorf("chunk sink: %w", err)
		}
		defer func() {
			if !published {
				batch.Rollback()
			}
		}()
	}

	var journalErr error
	opts := []chunk.Option{
		chunk.WithSource(job.source()),
		chunk.WithMetrics(job.Metrics),
		chunk.WithDiagnostics(func(d common.Diagnostic) {
			if journalErr == nil {
				journalErr = journal.Append(d)
			}
		}),
	}
	emit := func(c *chunk.Chunk) error {
		if journalErr != nil {
			return fmt.Errorf("diagnostics: %w", journalErr)
		}
		doc := chunk.Serialize(c)
		if err := docs.Write(doc); err != nil {
			return err
		}
		if err := summary.Write(doc); err != nil {
			return err
		}
		if xlsx != nil {
			if err := xlsx.Write(doc); err != nil {
				return err
			}
		}
		if batch != nil {
			if err := batch.Write(ctx, doc); err != nil {
				return fmt.Errorf("chunk sink: %w", err)
			}
		}
		return nil
	}
	res.Stats, err = chunk.Segment(ctxReader{ctx: ctx, r: in}, job.Schema, emit, opts...)
	if err != nil {
		return res, fmt.Errorf("segment %s: %w", job.source(), err)
	}
	if journalErr != nil {
		return res, fmt.Errorf("diagnostics: %w", journalErr)
	}

	if err := docs.Close(); err != nil {
		return res, err
	}
	if err := summary.Close(); err != nil {
		return res, err
	}
	if err := csvBuf.Flush(); err != nil {
		return res, err
	}
	if err := journal.Flush(); err != nil {
		return res, err
	}
	res.Diagnostics = journal.Count()
	if xlsx != nil {
		if _, err := xlsx.WriteTo(xlsxFile); err != nil {
			return res, fmt.Errorf("xlsx summary: %w", err)
		}
	}

	pub, err := common.CommitAll(pending)
	if err != nil {
		return res, err
	}
	if batch != nil {
		if err := batch.Commit(); err != nil {
			if rerr := pub.Revert(); rerr != nil {
				common.Logf("%s: revert artifacts: %v", job.Name, rerr)
			}
			return res, fmt.Errorf("chunk sink: %w", err)
		}
	}
	pub.Keep()
	published = true
	for _, af := range pending {
		res.Artifacts = append(res.Artifacts, af.Path())
	}
	res.ChunksPath = paths.Chunks
	res.ChunksSha256 = chunksFile.Sha256()
	common.Logf("%s: %d lines, %d records, %d chunks, %d invalid (%d idle)",
		job.Name, res.Stats.Lines, res.Stats.Records, res.Stats.Chunks, res.Stats.Invalid, res.Stats.DiscardedIdle)
	return res, nil
}

// Analyze runs the dispatcher over a chunk file and publishes the text
// report, plus the PDF when enabled.
func Analyze(ctx context.Context, job Job, chunksPath string) (AnalyzeResult, error) {
	return analyze(ctx, job, chunksPath, report.PDFMeta{})
}

func analyze(ctx context.Context, job Job, chunksPath string, meta report.PDFMeta) (res AnalyzeResult, err error) {
	started := time.Now()
	defer func() {
		res.Elapsed = time.Since(started)
		job.Recorder.ObserveAnalyze(job.Name, res.Flagged, res.Elapsed, err)
	}()
	if strings.TrimSpace(job.Name) == "" {
		return res, ErrNoName
	}
	engine, err := analysis.NewEngine(job.Definitions)
	if err != nil {
		return res, err
	}
	paths := job.Paths()
	text, err := report.CreateAnalysisText(paths.Analysis)
	if err != nil {
		return res, err
	}
	var reports []analysis.ChunkReport
	err = engine.AnalyzeFile(chunksPath, func(rep analysis.ChunkReport) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Chunks++
		if rep.Flagged() > 0 {
			res.Flagged++
		}
		if job.Exports.PDF {
			reports = append(reports, rep)
		}
		return text.Write(rep)
	})
	if err != nil {
		text.Abort()
		return res, fmt.Errorf("analyze %s: %w", chunksPath, err)
	}
	if err := text.Commit(); err != nil {
		return res, err
	}
	res.Artifacts = append(res.Artifacts, paths.Analysis)

	if job.Exports.PDF {
		if meta.Name == "" {
			meta.Name = job.Name
		}
		if meta.Input == "" {
			meta.Input = chunksPath
		}
		if meta.ChunksSha256 == "" {
			if meta.ChunksSha256, _, err = common.Sha256OfFile(chunksPath); err != nil {
				return res, err
			}
		}
		meta.GeneratedAt = time.Now().UTC()
		if err := report.SaveAnalysisPDF(paths.PDF, meta, reports); err != nil {
			return res, fmt.Errorf("analysis pdf: %w", err)
		}
		res.Artifacts = append(res.Artifacts, paths.PDF)
	}
	return res, nil
}

// Run segments the job input, analyzes the resulting chunks and records a
// run summary and a manifest over every artifact.
func Run(ctx context.Context, job Job) (RunResult, error) {
	out := RunResult{Name: job.Name}
	seg, err := Segment(ctx, job)
	out.Segment = seg
	if err != nil {
		return out, err
	}
	ana, err := analyze(ctx, job, seg.ChunksPath, report.PDFMeta{
		Name:         job.Name,
		Input:        job.source(),
		ChunksSha256: seg.ChunksSha256,
		Records:      seg.Stats.Records,
	})
	out.Analyze = ana
	if err != nil {
		return out, err
	}

	paths := job.Paths()
	sum := report.RunSummary{
		Name:             job.Name,
		Input:            seg.Inputs,
		StartedAt:        seg.StartedAt,
		Duration:         (seg.Elapsed + ana.Elapsed).Round(time.Millisecond).String(),
		Lines:            seg.Stats.Lines,
		Records:          seg.Stats.Records,
		InvalidLines:     seg.Stats.Invalid,
		DiscardedIdle:    seg.Stats.DiscardedIdle,
		PaddedRecords:    seg.Stats.PaddedRecords,
		TruncatedRecords: seg.Stats.TruncatedRecords,
		Chunks:           seg.Stats.Chunks,
		FlaggedChunks:    ana.Flagged,
		ChunksSha256:     seg.ChunksSha256,
	}
	if err := report.SaveRunSummaryJSON(sum, paths.RunSummary); err != nil {
		return out, err
	}
	out.SummaryPath = paths.RunSummary

	artifacts := append(append([]string{}, seg.Artifacts...), ana.Artifacts...)
	artifacts = append(artifacts, paths.RunSummary)
	m, err := manifest.Build(job.OutputDir, artifacts)
	if err != nil {
		return out, err
	}
	if err := manifest.Save(m, paths.Manifest); err != nil {
		return out, err
	}
	out.ManifestPath = paths.Manifest
	return out, nil
}

// IsCancelled reports whether err stems from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
