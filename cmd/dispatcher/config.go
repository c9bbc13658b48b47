package main

import (
	"github.com/agendazap/dispatcher/pkg/evolution"
	"github.com/agendazap/dispatcher/pkg/file"
	"github.com/agendazap/dispatcher/pkg/httpserver"
	"github.com/agendazap/dispatcher/pkg/pg"
	"github.com/agendazap/dispatcher/pkg/queue"
	"github.com/agendazap/dispatcher/pkg/redis"
	"github.com/agendazap/dispatcher/pkg/transcode"
	"github.com/agendazap/dispatcher/svc/dispatch"
)

type appConfig struct {
	Env       string `env:"APP_ENV" envDefault:"development"`
	Service   string `env:"APP_SERVICE" envDefault:"dispatcher"`
	LogLevel  string `env:"LOG_LEVEL"`
	Transcode bool   `env:"TRANSCODE_ENABLED" envDefault:"true"`
	// Role selects which halves run: "all", "scheduler" or "worker".
	Role string `env:"APP_ROLE" envDefault:"all"`
}

func (c appConfig) runsScheduler() bool { return c.Role == "all" || c.Role == "scheduler" }
func (c appConfig) runsWorker() bool    { return c.Role == "all" || c.Role == "worker" }

// Validate implements config.Validator.
func (c appConfig) Validate() error {
	switch c.Role {
	case "all", "scheduler", "worker":
		return nil
	default:
		return errUnknownRole
	}
}

// configs bundles every component config loaded at startup.
type configs struct {
	app       appConfig
	dispatch  dispatch.Config
	pg        pg.Config
	redis     redis.Config
	queue     queue.Config
	media     file.Config
	evolution evolution.Config
	transcode transcode.Config
	http      httpserver.Config
}
