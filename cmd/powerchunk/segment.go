package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/pipeline"
)

func newSegmentCmd(a *app) *cobra.Command {
	var f jobFlags
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Split a power log into chunks",
		Long:  "segment writes the chunk list, the chunk summary and the diagnostics journal of a power log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, closeSink, err := a.buildJob(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer closeSink()
			defer a.writeMetrics()
			var res pipeline.SegmentResult
			err = withProgress(job, func() error {
				var err error
				res, err = pipeline.Segment(cmd.Context(), job)
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chunks=%d records=%d invalid=%d discarded_idle=%d padded=%d truncated=%d\n",
				res.Stats.Chunks, res.Stats.Records, res.Stats.Invalid, res.Stats.DiscardedIdle,
				res.Stats.PaddedRecords, res.Stats.TruncatedRecords)
			for _, p := range res.Artifacts {
				fmt.Fprintln(out, "Wrote", p)
			}
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}
