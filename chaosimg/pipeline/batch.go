package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used by SealBatch when workers <= 0.
const DefaultWorkers = 4

// SealBatch seals independent requests on up to workers goroutines. Results
// keep the order of reqs. The first failing request cancels the jobs that
// have not started yet; a running seal is never interrupted.
func (p *Pipeline) SealBatch(ctx context.Context, reqs []SealRequest, workers int) ([]*Sealed, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make([]*Sealed, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := p.Seal(reqs[i])
			if err != nil {
				return fmt.Errorf("pipeline: request %d: %w", i, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
