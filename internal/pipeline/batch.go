package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"example.com/powerchunk/internal/common"
)

// RunBatch runs independent jobs with at most concurrency in flight. A failing
// job does not stop the others; results keep the order of jobs and every
// failure is also part of the joined error.
func RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]RunResult, error) {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	results := make([]RunResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = RunResult{Name: job.Name, Err: err}
				return nil
			}
			res, err := Run(ctx, job)
			if err != nil {
				common.Logf("%s: %v", job.Name, err)
				res.Err = fmt.Errorf("%s: %w", job.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}
