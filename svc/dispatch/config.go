package dispatch

import (
	"fmt"
	"time"
)

// Config holds the dispatch engine settings.
type Config struct {
	LockTTL           time.Duration `env:"DISPATCH_LOCK_TTL" envDefault:"50s"`
	DefaultDailyLimit int           `env:"DISPATCH_DEFAULT_DAILY_LIMIT" envDefault:"65"`
	MediaOffset       time.Duration `env:"DISPATCH_MEDIA_OFFSET" envDefault:"2s"`
	Queue             string        `env:"DISPATCH_QUEUE" envDefault:"dispatch"`
	MaxRetries        int8          `env:"DISPATCH_MAX_RETRIES" envDefault:"3"`
	Timezone          string        `env:"DISPATCH_TIMEZONE" envDefault:"America/Sao_Paulo"`
	CronSpec          string        `env:"DISPATCH_CRON" envDefault:"* * * * *"`

	loc *time.Location
}

// Validate implements config.Validator and resolves the time zone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, c.Timezone, err)
	}
	c.loc = loc

	if c.LockTTL <= 0 || c.LockTTL >= time.Minute {
		return fmt.Errorf("DISPATCH_LOCK_TTL must be between 0 and 1m, got %s", c.LockTTL)
	}
	if c.DefaultDailyLimit < 0 {
		return fmt.Errorf("DISPATCH_DEFAULT_DAILY_LIMIT must not be negative, got %d", c.DefaultDailyLimit)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("DISPATCH_MAX_RETRIES must be between 0 and 10, got %d", c.MaxRetries)
	}
	if c.Queue == "" {
		return fmt.Errorf("DISPATCH_QUEUE must not be empty")
	}
	return nil
}

// Location returns the resolved zone, or time.Local before Validate ran.
func (c Config) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}
