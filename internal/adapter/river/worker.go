package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// ChangeWorker processes change notification jobs from the River queue.
// It logs each change; delivery to members is outside this service.
type ChangeWorker struct {
	river.WorkerDefaults[ChangeJobArgs]
	Logger *slog.Logger
}

// Work processes a single change job.
func (w *ChangeWorker) Work(ctx context.Context, job *river.Job[ChangeJobArgs]) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "processing change",
		"change", job.Args.Change,
		"tenant_id", job.Args.TenantID,
		"entity_id", job.Args.EntityID,
		"actor_id", job.Args.ActorID,
		"version", job.Args.Version,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
