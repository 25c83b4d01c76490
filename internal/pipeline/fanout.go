package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
)

// Inferencer is the gateway surface the analysis components depend on.
type Inferencer interface {
	Call(ctx context.Context, req gateway.Request) gateway.Result
	Available() bool
	Route(task gateway.Task) gateway.Route
}

// fanOut runs fn for every index in [0, n) with at most workers calls in
// flight. fn must only write to slot i of its caller's result slice. The
// returned slice reports which indexes ran; indexes still queued when ctx
// ends are left false.
func fanOut(ctx context.Context, n, workers int, fn func(ctx context.Context, i int)) []bool {
	ran := make([]bool, n)
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i)
			ran[i] = true
			return nil
		})
	}
	_ = g.Wait()

	return ran
}

func live(gw Inferencer) bool {
	return gw != nil && gw.Available()
}
