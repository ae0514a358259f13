package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/pipeline"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		chunksPath string
		name       string
		outDir     string
		defsPath   string
		pdf        bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a chunk file against the parameter definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.definitions(defsPath)
			if err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimPrefix(strings.TrimSuffix(filepath.Base(chunksPath), ".json"), "chunks_")
			}
			job := pipeline.Job{
				Name:        name,
				OutputDir:   a.cfg.OutputDir,
				Definitions: store,
				Exports:     a.cfg.Exports,
				Recorder:    a.recorder,
			}
			if outDir != "" {
				job.OutputDir = outDir
			}
			job.Exports.PDF = job.Exports.PDF || pdf
			defer a.writeMetrics()
			res, err := pipeline.Analyze(cmd.Context(), job, chunksPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chunks=%d flagged=%d\n", res.Chunks, res.Flagged)
			for _, p := range res.Artifacts {
				fmt.Fprintln(out, "Wrote", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chunksPath, "chunks", "", "Chunk file produced by segment")
	cmd.Flags().StringVar(&name, "name", "", "Name used in artifact names (default from the chunk file name)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (overrides config)")
	cmd.Flags().StringVar(&defsPath, "defs", "", "Parameter definitions YAML (overrides config)")
	cmd.Flags().BoolVar(&pdf, "pdf", false, "Also write the analysis as PDF")
	cmd.MarkFlagRequired("chunks")
	return cmd
}
