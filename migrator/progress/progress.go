package progress

import (
	"context"
	"log/slog"
	"sync"

	"opencsg.com/pulp-migrator/builder/store/database"
)

const (
	StateRunning  = "running"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// Reporter persists per-phase counters of one task and mirrors them to
// the log. Counter updates are buffered in memory and flushed on every
// increment so an aborted run leaves honest numbers behind.
type Reporter struct {
	taskStore *database.MigrationTaskStore
	task      *database.MigrationTask

	mu      sync.Mutex
	reports map[string]*database.ProgressReport
}

func NewReporter(taskStore *database.MigrationTaskStore, task *database.MigrationTask) *Reporter {
	return &Reporter{
		taskStore: taskStore,
		task:      task,
		reports:   make(map[string]*database.ProgressReport),
	}
}

// Start opens a counter for one phase. Calling Start again for the same
// code resets the totals, which is what a rerun wants.
func (r *Reporter) Start(ctx context.Context, code, message string, total int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[code]
	if ok {
		report.Message = message
		report.State = StateRunning
		report.Total = total
		report.Done = 0
		report.Skipped = 0
		return r.taskStore.UpdateReport(ctx, report)
	}
	report = &database.ProgressReport{
		MigrationTaskID: r.task.ID,
		Message:         message,
		Code:            code,
		State:           StateRunning,
		Total:           total,
	}
	created, err := r.taskStore.CreateReport(ctx, report)
	if err != nil {
		return err
	}
	r.reports[code] = created
	slog.Info("phase started", slog.String("code", code),
		slog.String("message", message), slog.Int64("total", total))
	return nil
}

func (r *Reporter) Increment(ctx context.Context, code string, done, skipped int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[code]
	if !ok {
		return nil
	}
	report.Done += done
	report.Skipped += skipped
	return r.taskStore.UpdateReport(ctx, report)
}

// SetTotal adjusts a phase total discovered after Start, e.g. once the
// number of unmigrated rows is known.
func (r *Reporter) SetTotal(ctx context.Context, code string, total int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[code]
	if !ok {
		return nil
	}
	report.Total = total
	return r.taskStore.UpdateReport(ctx, report)
}

func (r *Reporter) Finish(ctx context.Context, code string) error {
	return r.close(ctx, code, StateFinished)
}

func (r *Reporter) Fail(ctx context.Context, code string) error {
	return r.close(ctx, code, StateFailed)
}

func (r *Reporter) close(ctx context.Context, code, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[code]
	if !ok {
		return nil
	}
	report.State = state
	err := r.taskStore.UpdateReport(ctx, report)
	slog.Info("phase done", slog.String("code", code), slog.String("state", state),
		slog.Int64("done", report.Done), slog.Int64("skipped", report.Skipped))
	return err
}
