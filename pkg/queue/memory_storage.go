package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StorageOption configures a storage backend.
type StorageOption func(*storageOptions)

type storageOptions struct {
	retryBackoff time.Duration
	now          func() time.Time
}

func defaultStorageOptions() *storageOptions {
	return &storageOptions{
		retryBackoff: time.Minute,
		now:          time.Now,
	}
}

// WithRetryBackoff sets the fixed delay before a failed task becomes claimable again.
func WithRetryBackoff(d time.Duration) StorageOption {
	return func(o *storageOptions) {
		if d >= 0 {
			o.retryBackoff = d
		}
	}
}

// WithStorageClock overrides the time source, used by tests to step through backoffs.
func WithStorageClock(now func() time.Time) StorageOption {
	return func(o *storageOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// MemoryStorage implements all queue repository interfaces for testing and local development.
// Expired locks are reclaimed lazily by ClaimTask.
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	order []uuid.UUID
	dlq   []*TasksDlq
	opts  *storageOptions
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage(opts ...StorageOption) *MemoryStorage {
	options := defaultStorageOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		opts:  options,
	}
}

// CreateTask implements EnqueuerRepository
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	ms.order = append(ms.order, task.ID)

	return nil
}

// ClaimTask implements WorkerRepository. The earliest scheduled due task wins.
func (ms *MemoryStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.opts.now()
	var best *Task

	for _, id := range ms.order {
		task := ms.tasks[id]
		if !slices.Contains(queues, task.Queue) || !claimable(task, now) {
			continue
		}
		if best == nil || task.ScheduledAt.Before(best.ScheduledAt) {
			best = task
		}
	}

	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	taskCopy := *best
	return &taskCopy, nil
}

func claimable(task *Task, now time.Time) bool {
	switch task.Status {
	case TaskStatusPending:
		return !task.ScheduledAt.After(now)
	case TaskStatusProcessing:
		// the worker holding it died
		return task.LockedUntil != nil && task.LockedUntil.Before(now)
	default:
		return false
	}
}

// CompleteTask implements WorkerRepository
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	now := ms.opts.now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	return nil
}

// FailTask implements WorkerRepository
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount > task.MaxRetries {
		task.Status = TaskStatusFailed
		return nil
	}

	task.Status = TaskStatusPending
	task.ScheduledAt = ms.opts.now().Add(ms.opts.retryBackoff)

	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	entry := &TasksDlq{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		RetryCount: task.RetryCount,
		FailedAt:   ms.opts.now(),
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}
	ms.dlq = append(ms.dlq, entry)

	delete(ms.tasks, taskID)
	ms.order = slices.DeleteFunc(ms.order, func(id uuid.UUID) bool { return id == taskID })

	return nil
}

// Tasks returns a snapshot of the live tasks in insertion order.
func (ms *MemoryStorage) Tasks() []Task {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Task, 0, len(ms.order))
	for _, id := range ms.order {
		out = append(out, *ms.tasks[id])
	}
	return out
}

// DeadLetters returns a snapshot of the dead letter queue.
func (ms *MemoryStorage) DeadLetters() []TasksDlq {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]TasksDlq, 0, len(ms.dlq))
	for _, e := range ms.dlq {
		out = append(out, *e)
	}
	return out
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}
