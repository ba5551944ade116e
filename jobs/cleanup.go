package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskIdempotencyCleanup purges form keys past their retention.
const TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"

// IdempotencyRetention is how long a processed form key blocks a replay.
const IdempotencyRetention = 7 * 24 * time.Hour

// KeySweeper deletes expired idempotency keys.
type KeySweeper interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob sweeps idempotency keys.
type CleanupJob struct {
	keys      KeySweeper
	retention time.Duration
	logger    *slog.Logger
}

// NewCleanupJob wires the sweeper. A zero retention uses IdempotencyRetention.
func NewCleanupJob(keys KeySweeper, retention time.Duration, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = IdempotencyRetention
	}
	return &CleanupJob{keys: keys, retention: retention, logger: logger}
}

// Handler returns the worker registration of the job.
func (j *CleanupJob) Handler() TaskHandler {
	return TaskHandler{Type: TaskIdempotencyCleanup, Handler: j.Handle}
}

// Handle deletes the keys older than the retention.
func (j *CleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.keys == nil {
		return errors.New("cleanup job: handler not configured")
	}
	n, err := j.keys.Cleanup(ctx, j.retention)
	if err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.logger.Info("idempotency cleanup complete", slog.Int64("deleted", n))
	return nil
}

// NewCleanupTask builds the sweep task.
func NewCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, []byte("{}"))
}
