package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agendazap/dispatcher/pkg/logger"
)

// Ticker runs one tick for the given instant.
type Ticker interface {
	RunTick(ctx context.Context, now time.Time) TickReport
}

// Trigger fires the scheduler on a cron schedule, once a minute by default.
type Trigger struct {
	ticker Ticker
	spec   string
	loc    *time.Location
	log    *slog.Logger

	mu sync.Mutex
	c  *cron.Cron
}

// NewTrigger creates a trigger for spec evaluated in loc.
func NewTrigger(ticker Ticker, spec string, loc *time.Location, log *slog.Logger) *Trigger {
	if spec == "" {
		spec = "* * * * *"
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &Trigger{
		ticker: ticker,
		spec:   spec,
		loc:    loc,
		log:    log.With(logger.Component("dispatch.trigger")),
	}
}

// Start registers the cron job and starts firing. Ticks run with ctx and
// overlapping ticks are skipped by cron itself.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return ErrTriggerRunning
	}

	c := cron.New(
		cron.WithLocation(t.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(t.spec, func() {
		t.ticker.RunTick(ctx, time.Now().In(t.loc))
	}); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", t.spec, err)
	}

	c.Start()
	t.c = c
	t.log.InfoContext(ctx, "trigger started", slog.String("spec", t.spec), slog.String("tz", t.loc.String()))
	return nil
}

// Stop stops firing and waits for a running tick to finish.
func (t *Trigger) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return ErrTriggerNotRunning
	}

	<-t.c.Stop().Done()
	t.c = nil
	t.log.Info("trigger stopped")
	return nil
}

// Run starts the trigger and blocks until ctx is done. It fits errgroup.Go.
func (t *Trigger) Run(ctx context.Context) func() error {
	return func() error {
		if err := t.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return t.Stop()
	}
}
