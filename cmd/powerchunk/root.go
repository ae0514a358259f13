package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/common"
	"example.com/powerchunk/internal/config"
	"example.com/powerchunk/internal/defs"
	"example.com/powerchunk/internal/observability"
	"example.com/powerchunk/internal/pipeline"
	"example.com/powerchunk/internal/store/postgres"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	logDir     string

	cfg       config.Config
	logCloser io.Closer
	recorder  *observability.Recorder
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "powerchunk",
		Short:         "Battery power log segmentation and analysis",
		Long:          "powerchunk splits battery power logs into chunks of constant power state and analyzes every chunk against parameter definitions.",
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to run configuration YAML")
	root.PersistentFlags().StringVar(&a.logDir, "log-dir", "", "Directory for the rotating log file (overrides config)")

	root.AddCommand(
		newSegmentCmd(a),
		newAnalyzeCmd(a),
		newRunCmd(a),
		newBatchCmd(a),
		newDecodeCmd(a),
		newDefsCmd(a),
		newChunkCmd(a),
		newManifestCmd(a),
	)
	return root, a
}

// Execute runs the root command and exits 1 on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	a.close()
	if err != nil {
		if pipeline.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "interrupted")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (a *app) setup() error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if a.logDir != "" {
		cfg.Logs.Directory = a.logDir
	}
	a.cfg = cfg
	if cfg.MetricsTextfile != "" {
		a.recorder = observability.NewRecorder()
	}
	if cfg.Logs.Directory != "" {
		closer, err := common.SetupLogging(cfg.Logs, "powerchunk")
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		a.logCloser = closer
	}
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

// writeMetrics exports the run metrics when a textfile is configured.
func (a *app) writeMetrics() {
	if err := a.recorder.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		common.Logf("write metrics textfile: %v", err)
	}
}

func (a *app) definitions(override string) (*defs.Store, error) {
	path := a.cfg.Definitions
	if override != "" {
		path = override
	}
	return defs.EnsureLoaded(path)
}

// openSink connects the Postgres chunk sink when a DSN is configured.
func (a *app) openSink(ctx context.Context) (*postgres.ChunkRepository, func(), error) {
	dsn := a.cfg.Postgres.DSN
	if env := os.Getenv("POWERCHUNK_PG_DSN"); env != "" {
		dsn = env
	}
	if dsn == "" {
		return nil, func() {}, nil
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	repo, err := postgres.NewChunkRepository(db, postgres.WithTable(a.cfg.Postgres.Table))
	if err == nil {
		err = repo.EnsureSchema(ctx)
	}
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, func() { db.Close() }, nil
}

// jobFlags are the input/output flags shared by segment and run.
type jobFlags struct {
	name     string
	input    string
	inputDir string
	outDir   string
	defsPath string
	xlsx     bool
	pdf      bool
	progress bool
}

func (f *jobFlags) register(cmd *cobra.Command, withAnalysis bool) {
	cmd.Flags().StringVar(&f.input, "input", "", "Power log file (plain or .gz)")
	cmd.Flags().StringVar(&f.inputDir, "input-dir", "", "Directory of rotated log segments")
	cmd.Flags().StringVar(&f.name, "name", "", "Device or issue name used in artifact names")
	cmd.Flags().StringVar(&f.outDir, "out", "", "Output directory (overrides config)")
	cmd.Flags().BoolVar(&f.xlsx, "xlsx", false, "Also write the chunk summary as XLSX")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Print progress to stderr")
	cmd.MarkFlagsMutuallyExclusive("input", "input-dir")
	cmd.MarkFlagsOneRequired("input", "input-dir")
	if withAnalysis {
		cmd.Flags().StringVar(&f.defsPath, "defs", "", "Parameter definitions YAML (overrides config)")
		cmd.Flags().BoolVar(&f.pdf, "pdf", false, "Also write the analysis as PDF")
	}
}

func (a *app) buildJob(ctx context.Context, f jobFlags, withAnalysis bool) (pipeline.Job, func(), error) {
	schema, err := a.cfg.BuildSchema()
	if err != nil {
		return pipeline.Job{}, nil, fmt.Errorf("schema: %w", err)
	}
	job := pipeline.Job{
		Name:          jobName(f, a.cfg.DeviceName),
		Input:         f.input,
		InputDir:      f.inputDir,
		RotatedPrefix: a.cfg.RotatedPrefix,
		OutputDir:     a.cfg.OutputDir,
		Schema:        schema,
		Exports:       a.cfg.Exports,
		Recorder:      a.recorder,
	}
	if f.outDir != "" {
		job.OutputDir = f.outDir
	}
	job.Exports.XLSX = job.Exports.XLSX || f.xlsx
	job.Exports.PDF = job.Exports.PDF || f.pdf
	if withAnalysis {
		if job.Definitions, err = a.definitions(f.defsPath); err != nil {
			return job, nil, err
		}
	}
	if f.progress {
		job.Metrics = common.NewMetrics()
	}
	repo, closeSink, err := a.openSink(ctx)
	if err != nil {
		return job, nil, fmt.Errorf("chunk sink: %w", err)
	}
	if repo != nil {
		job.Sink = repo
	}
	return job, closeSink, nil
}

func jobName(f jobFlags, device string) string {
	switch {
	case f.name != "":
		return f.name
	case device != "":
		return device
	case f.inputDir != "":
		return filepath.Base(filepath.Clean(f.inputDir))
	}
	base := strings.TrimSuffix(filepath.Base(f.input), ".gz")
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// withProgress prints progress while fn runs when the job carries metrics.
func withProgress(job pipeline.Job, fn func() error) error {
	if job.Metrics == nil {
		return fn()
	}
	stop := common.StartProgressPrinter(os.Stderr, job.Metrics, 500*time.Millisecond)
	defer stop()
	return fn()
}
