package hook

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunFork runs fn once per branch of f with at most limit branches in
// flight (limit <= 0 means unbounded). The first error cancels the context
// passed to the remaining branches and is returned.
//
// The executor never calls RunFork. A host that receives a Fork result
// decides whether to fan out in parallel, queue branches, or ignore them;
// RunFork is the helper for hosts that choose bounded parallel execution.
func RunFork(ctx context.Context, f Fork, limit int, fn func(ctx context.Context, b Branch) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, b := range f.Branches {
		g.Go(func() error {
			return fn(gctx, b)
		})
	}
	return g.Wait()
}
