package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/pipeline"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		inDir       string
		outDir      string
		defsPath    string
		concurrency int
		xlsx        bool
		pdf         bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every log found below a directory",
		Long:  "batch runs each log file, and each directory of rotated segments, below --in as an independent job writing into <out>/<name>.",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := a.cfg.BuildSchema()
			if err != nil {
				return fmt.Errorf("schema: %w", err)
			}
			store, err := a.definitions(defsPath)
			if err != nil {
				return err
			}
			base := pipeline.Job{
				RotatedPrefix: a.cfg.RotatedPrefix,
				OutputDir:     a.cfg.OutputDir,
				Schema:        schema,
				Definitions:   store,
				Exports:       a.cfg.Exports,
				Recorder:      a.recorder,
			}
			if outDir != "" {
				base.OutputDir = outDir
			}
			base.Exports.XLSX = base.Exports.XLSX || xlsx
			base.Exports.PDF = base.Exports.PDF || pdf
			repo, closeSink, err := a.openSink(cmd.Context())
			if err != nil {
				return fmt.Errorf("chunk sink: %w", err)
			}
			defer closeSink()
			if repo != nil {
				base.Sink = repo
			}

			jobs, err := pipeline.DiscoverJobs(inDir, base)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no power logs found in %s", inDir)
			}
			if concurrency <= 0 {
				concurrency = a.cfg.Concurrency
			}
			defer a.writeMetrics()
			results, batchErr := pipeline.RunBatch(cmd.Context(), jobs, concurrency)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCHUNKS\tRECORDS\tFLAGGED\tSTATUS")
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = "error: " + r.Err.Error()
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", r.Name, r.Segment.Stats.Chunks, r.Segment.Stats.Records, r.Analyze.Flagged, status)
			}
			tw.Flush()
			return batchErr
		},
	}
	cmd.Flags().StringVar(&inDir, "in", ".", "Input directory")
	cmd.Flags().StringVar(&outDir, "out", "", "Results directory (overrides config)")
	cmd.Flags().StringVar(&defsPath, "defs", "", "Parameter definitions YAML (overrides config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent jobs (default from config)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "Also write chunk summaries as XLSX")
	cmd.Flags().BoolVar(&pdf, "pdf", false, "Also write analyses as PDF")
	return cmd
}
