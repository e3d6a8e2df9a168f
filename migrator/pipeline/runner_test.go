package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

// recordStage appends the pulp2 id of every item it sees and forwards
// the item unchanged.
type recordStage struct {
	name string
	mu   sync.Mutex
	seen []string
}

func (s *recordStage) Name() string { return s.name }

func (s *recordStage) Run(ctx context.Context, in <-chan *pipeline.DeclarativeContent, out chan<- *pipeline.DeclarativeContent) error {
	for dc := range in {
		s.mu.Lock()
		s.seen = append(s.seen, dc.Pulp2Content.Pulp2ID)
		s.mu.Unlock()
		select {
		case out <- dc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func testRows(n int) []database.Pulp2Content {
	rows := make([]database.Pulp2Content, n)
	for i := range rows {
		rows[i] = database.Pulp2Content{Pulp2ID: fmt.Sprintf("unit-%03d", i)}
	}
	return rows
}

func passResolver(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	return &pipeline.DeclarativeContent{Pulp2Content: &pc}, nil
}

func TestRunnerPreservesInputOrder(t *testing.T) {
	rows := testRows(50)
	first := &recordStage{name: "first"}
	second := &recordStage{name: "second"}

	runner := pipeline.NewRunner(passResolver, 8, first, second)
	require.NoError(t, runner.Run(context.TODO(), rows))

	want := make([]string, len(rows))
	for i, row := range rows {
		want[i] = row.Pulp2ID
	}
	require.Equal(t, want, first.seen)
	require.Equal(t, want, second.seen)
}

func TestRunnerDropsNilResolutions(t *testing.T) {
	rows := testRows(10)
	resolve := func(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
		if pc.Pulp2ID == "unit-003" || pc.Pulp2ID == "unit-007" {
			return nil, nil
		}
		return &pipeline.DeclarativeContent{Pulp2Content: &pc}, nil
	}

	stage := &recordStage{name: "record"}
	require.NoError(t, pipeline.NewRunner(resolve, 4, stage).Run(context.TODO(), rows))

	require.Len(t, stage.seen, 8)
	require.NotContains(t, stage.seen, "unit-003")
	require.NotContains(t, stage.seen, "unit-007")
}

func TestRunnerPropagatesResolveError(t *testing.T) {
	rows := testRows(20)
	boom := errors.New("bad unit")
	resolve := func(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
		if pc.Pulp2ID == "unit-010" {
			return nil, boom
		}
		return &pipeline.DeclarativeContent{Pulp2Content: &pc}, nil
	}

	err := pipeline.NewRunner(resolve, 4, &recordStage{name: "record"}).Run(context.TODO(), rows)
	require.ErrorIs(t, err, boom)
}

func TestRunnerNoStages(t *testing.T) {
	require.NoError(t, pipeline.NewRunner(passResolver, 0).Run(context.TODO(), testRows(5)))
}
