package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"opencsg.com/pulp-migrator/builder/store/database"
)

const channelBuffer = 100

// Resolver turns one side-table row into pipeline input. Returning a
// nil item without error drops the row silently.
type Resolver func(ctx context.Context, pc database.Pulp2Content) (*DeclarativeContent, error)

// Runner executes the stage sequence for one batch of pre-migrated
// rows. The first stage fans the rows out over a bounded number of
// slices; every later stage is a single goroutine.
type Runner struct {
	resolve Resolver
	stages  []Stage
	slices  int
	dropped atomic.Int64
}

func NewRunner(resolve Resolver, slices int, stages ...Stage) *Runner {
	if slices < 1 {
		slices = 1
	}
	return &Runner{resolve: resolve, stages: stages, slices: slices}
}

// Dropped returns how many rows the last Run resolved to nothing, e.g.
// on-demand units whose fetch source is gone.
func (r *Runner) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Runner) Run(ctx context.Context, rows []database.Pulp2Content) error {
	g, ctx := errgroup.WithContext(ctx)

	head := make(chan *DeclarativeContent, channelBuffer)
	g.Go(func() error {
		defer close(head)
		return r.runFirstStage(ctx, rows, head)
	})

	in := head
	for _, stage := range r.stages {
		stage := stage
		stageIn := in
		stageOut := make(chan *DeclarativeContent, channelBuffer)
		g.Go(func() error {
			defer close(stageOut)
			return stage.Run(ctx, stageIn, stageOut)
		})
		in = stageOut
	}

	// drain the tail so no stage blocks on a full channel
	tail := in
	g.Go(func() error {
		for range tail {
		}
		return nil
	})

	return g.Wait()
}

// runFirstStage resolves rows concurrently but emits them in input
// order, so interrupted runs resume deterministically.
func (r *Runner) runFirstStage(ctx context.Context, rows []database.Pulp2Content, out chan<- *DeclarativeContent) error {
	resolved := make([]chan *DeclarativeContent, len(rows))
	for i := range resolved {
		resolved[i] = make(chan *DeclarativeContent, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.slices)
	for i := range rows {
		i := i
		g.Go(func() error {
			dc, err := r.resolve(gctx, rows[i])
			if err != nil {
				return err
			}
			resolved[i] <- dc
			close(resolved[i])
			return nil
		})
	}

	emit := make(chan error, 1)
	go func() {
		for i := range resolved {
			select {
			case dc := <-resolved[i]:
				if dc == nil {
					r.dropped.Add(1)
					continue
				}
				select {
				case out <- dc:
				case <-ctx.Done():
					emit <- ctx.Err()
					return
				}
			case <-ctx.Done():
				emit <- ctx.Err()
				return
			}
		}
		emit <- nil
	}()

	if err := g.Wait(); err != nil {
		return err
	}
	return <-emit
}
