// Package pipeline turns power logs into chunk files, summaries and analysis
// reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/common"
	"example.com/powerchunk/internal/config"
	"example.com/powerchunk/internal/defs"
	"example.com/powerchunk/internal/observability"
	"example.com/powerchunk/internal/powerlog"
)

var (
	ErrNoName  = errors.New("pipeline: job name required")
	ErrNoInput = errors.New("pipeline: job needs exactly one of input file or input directory")
)

// Sink receives every chunk of a run in a single batch.
type Sink interface {
	BeginRun(ctx context.Context, name string) (chunk.Batch, error)
}

// Job describes the processing of one log (a single file or a directory of
// rotated segments) into the artifacts named after Name.
type Job struct {
	Name          string
	Input         string
	InputDir      string
	RotatedPrefix string
	OutputDir     string
	Schema        powerlog.Schema
	Definitions   *defs.Store
	Exports       config.ExportConfig
	Sink          Sink
	Recorder      *observability.Recorder
	Metrics       *common.Metrics
}

func (j Job) validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return ErrNoName
	}
	if (j.Input == "") == (j.InputDir == "") {
		return ErrNoInput
	}
	if j.Schema.Width() == 0 {
		return powerlog.ErrEmptySchema
	}
	return nil
}

func (j Job) source() string {
	if j.InputDir != "" {
		return j.InputDir
	}
	return j.Input
}

// inputs lists the files read by the job in order.
func (j Job) inputs() ([]string, error) {
	if j.InputDir != "" {
		return powerlog.Discover(j.InputDir, j.RotatedPrefix)
	}
	return []string{j.Input}, nil
}

// Paths are the artifact locations of a job.
type Paths struct {
	Chunks      string
	SummaryCSV  string
	SummaryXLSX string
	Diagnostics string
	Analysis    string
	PDF         string
	RunSummary  string
	Manifest    string
}

func (j Job) Paths() Paths {
	out := j.OutputDir
	if out == "" {
		out = "."
	}
	name := j.Name
	return Paths{
		Chunks:      filepath.Join(out, "chunks_"+name+".json"),
		SummaryCSV:  filepath.Join(out, "chunk_summary_"+name+".csv"),
		SummaryXLSX: filepath.Join(out, "chunk_summary_"+name+".xlsx"),
		Diagnostics: filepath.Join(out, "diagnostics_"+name+".jsonl"),
		Analysis:    filepath.Join(out, "powerchunk_analysis_summary_"+name+".txt"),
		PDF:         filepath.Join(out, "powerchunk_analysis_"+name+".pdf"),
		RunSummary:  filepath.Join(out, "run_"+name+".json"),
		Manifest:    filepath.Join(out, "manifest_"+name+".json"),
	}
}

var logExtensions = map[string]bool{".txt": true, ".csv": true, ".log": true}

// DiscoverJobs walks dir and derives one job per log found. A directory that
// holds rotated segments becomes a single job named after the directory; any
// other .txt, .csv or .log file (optionally gzipped) becomes a job named after
// its stem. Each job writes into its own subdirectory of base.OutputDir.
func DiscoverJobs(dir string, base Job) ([]Job, error) {
	prefix := base.RotatedPrefix
	if prefix == "" {
		prefix = powerlog.DefaultRotatedPrefix
	}
	var jobs []Job
	used := make(map[string]int)
	add := func(name string, j Job) {
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		j.Name = name
		j.OutputDir = filepath.Join(base.OutputDir, name)
		jobs = append(jobs, j)
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		rotated := false
		var files []string
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if strings.HasPrefix(e.Name(), prefix) {
				rotated = true
				continue
			}
			if logExtensions[strings.ToLower(filepath.Ext(strings.TrimSuffix(e.Name(), ".gz")))] {
				files = append(files, e.Name())
			}
		}
		if rotated {
			j := base
			j.Input, j.InputDir, j.RotatedPrefix = "", path, prefix
			add(filepath.Base(path), j)
		}
		sort.Strings(files)
		for _, f := range files {
			j := base
			j.Input, j.InputDir = filepath.Join(path, f), ""
			stem := strings.TrimSuffix(f, ".gz")
			add(strings.TrimSuffix(stem, filepath.Ext(stem)), j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
