// Package queue is a small persistent task queue used to defer work with a countdown
// and to retry failed work without blocking the caller.
//
// Three pieces cooperate through repository interfaces:
//
//   - Enqueuer stores a JSON payload as a pending Task, optionally delayed.
//   - Worker claims due tasks, runs the registered Handler and records the outcome.
//   - A storage backend (MemoryStorage for tests, PGStorage for production) owns
//     claiming, locking, retry rescheduling and the dead letter table.
//
// # Retries
//
// MaxRetries counts the attempts made after the first one. A failing handler makes the
// storage reschedule the task RetryBackoff later; once the retries are used up the task
// is moved to the dead letter queue. Wrap an error with Permanent to skip the remaining
// retries, for failures that another attempt cannot fix.
//
// # Usage
//
//	storage, _ := queue.NewPGStorage(pool, queue.WithRetryBackoff(time.Minute))
//
//	enq, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("dispatch"))
//	_, _ = enq.Enqueue(ctx, SendPayload{To: "+5511988887777"},
//	    queue.WithDelay(3*time.Second),
//	    queue.WithMaxRetries(3),
//	)
//
//	w, _ := queue.NewWorker(storage, queue.WithQueues("dispatch"))
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p SendPayload) error {
//	    return send(ctx, p)
//	}))
//	g.Go(w.Run(ctx))
package queue
