package dispatch

import (
	"log/slog"
	"time"
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLockTTL sets how long a window lock lives if the tick never releases it.
func WithLockTTL(ttl time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLocation sets the zone used for window keys, dates and times of day.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithPlanner replaces the default planner.
func WithPlanner(p *Planner) SchedulerOption {
	return func(s *Scheduler) {
		if p != nil {
			s.planner = p
		}
	}
}

// WithConfig applies lock TTL, media offset and location from cfg.
// cfg must have been validated.
func WithConfig(cfg Config) SchedulerOption {
	return func(s *Scheduler) {
		WithLockTTL(cfg.LockTTL)(s)
		WithPlanner(NewPlanner(cfg.MediaOffset))(s)
		WithLocation(cfg.Location())(s)
	}
}
