package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PGStorage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStorage persists tasks in the queue_tasks and queue_tasks_dlq tables.
// Claims use FOR UPDATE SKIP LOCKED so any number of workers can share a queue.
type PGStorage struct {
	db   DB
	opts *storageOptions
}

// NewPGStorage creates a PostgreSQL backed storage.
func NewPGStorage(db DB, opts ...StorageOption) (*PGStorage, error) {
	if db == nil {
		return nil, ErrRepositoryNil
	}

	options := defaultStorageOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &PGStorage{db: db, opts: options}, nil
}

const taskColumns = `id, queue, task_name, payload, status, retry_count, max_retries,
	scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// CreateTask implements EnqueuerRepository
func (s *PGStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO queue_tasks (id, queue, task_name, payload, status, retry_count, max_retries, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.Queue, task.TaskName, task.Payload, string(task.Status),
		int16(task.RetryCount), int16(task.MaxRetries), task.ScheduledAt, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}

	return nil
}

// ClaimTask implements WorkerRepository. Tasks left in processing by a dead
// worker become claimable again once their lock expires.
func (s *PGStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE queue_tasks
		SET status = 'processing',
			locked_until = now() + make_interval(secs => $3),
			locked_by = $1
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($2)
				AND ((status = 'pending' AND scheduled_at <= now())
					OR (status = 'processing' AND locked_until < now()))
			ORDER BY scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		workerID, queues, lockDuration.Seconds(),
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	return task, nil
}

// CompleteTask implements WorkerRepository
func (s *PGStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_tasks
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}

	return nil
}

// FailTask implements WorkerRepository
func (s *PGStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_tasks
		SET retry_count = retry_count + 1,
			error = $2,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 > max_retries THEN 'failed' ELSE 'pending' END,
			scheduled_at = CASE WHEN retry_count + 1 > max_retries THEN scheduled_at
				ELSE now() + make_interval(secs => $3) END
		WHERE id = $1 AND status = 'processing'`,
		taskID, errorMsg, s.opts.retryBackoff.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to fail task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}

	return nil
}

// MoveToDLQ implements WorkerRepository
func (s *PGStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO queue_tasks_dlq (id, task_id, queue, task_name, payload, error, retry_count, failed_at)
		SELECT $2, id, queue, task_name, payload, coalesce(error, ''), retry_count, now()
		FROM queue_tasks WHERE id = $1`,
		taskID, uuid.New(),
	)
	if err != nil {
		return fmt.Errorf("failed to copy task %s to DLQ: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM queue_tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit DLQ move: %w", err)
	}

	return nil
}

// GetTask loads a task by id.
func (s *PGStorage) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM queue_tasks WHERE id = $1`, taskID)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	return task, nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t          Task
		status     string
		retryCount int16
		maxRetries int16
	)

	if err := row.Scan(
		&t.ID, &t.Queue, &t.TaskName, &t.Payload, &status, &retryCount, &maxRetries,
		&t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = TaskStatus(status)
	t.RetryCount = int8(retryCount)
	t.MaxRetries = int8(maxRetries)

	return &t, nil
}
