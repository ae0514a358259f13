package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var f jobFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Segment a power log and analyze its chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, closeSink, err := a.buildJob(cmd.Context(), f, true)
			if err != nil {
				return err
			}
			defer closeSink()
			defer a.writeMetrics()
			var res pipeline.RunResult
			err = withProgress(job, func() error {
				var err error
				res, err = pipeline.Run(cmd.Context(), job)
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st := res.Segment.Stats
			fmt.Fprintf(out, "chunks=%d records=%d invalid=%d flagged=%d\n", st.Chunks, st.Records, st.Invalid, res.Analyze.Flagged)
			fmt.Fprintln(out, "Wrote", res.ManifestPath)
			return nil
		},
	}
	f.register(cmd, true)
	return cmd
}
