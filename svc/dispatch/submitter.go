package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/agendazap/dispatcher/pkg/queue"
)

// Enqueuer is the part of *queue.Enqueuer the submitter needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// QueueSubmitter enqueues operations as deferred tasks. The operation's
// delay becomes the task's scheduled time; the tick never sleeps.
type QueueSubmitter struct {
	enqueuer   Enqueuer
	queue      string
	maxRetries int8
}

// NewQueueSubmitter creates a submitter targeting queueName.
func NewQueueSubmitter(enqueuer Enqueuer, queueName string, maxRetries int8) (*QueueSubmitter, error) {
	if enqueuer == nil {
		return nil, ErrEnqueuerNil
	}
	return &QueueSubmitter{enqueuer: enqueuer, queue: queueName, maxRetries: maxRetries}, nil
}

func (s *QueueSubmitter) Submit(ctx context.Context, op SendOperation) error {
	_, err := s.enqueuer.Enqueue(ctx, op,
		queue.WithQueue(s.queue),
		queue.WithDelay(op.Delay),
		queue.WithMaxRetries(s.maxRetries),
	)
	return err
}
