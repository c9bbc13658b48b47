// Command dispatcher runs the scheduled WhatsApp dispatch engine: a minute
// trigger that turns due message definitions into queued send operations,
// and the queue workers that deliver them through the Evolution API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/agendazap/dispatcher/pkg/config"
	"github.com/agendazap/dispatcher/pkg/evolution"
	"github.com/agendazap/dispatcher/pkg/file"
	"github.com/agendazap/dispatcher/pkg/httpserver"
	"github.com/agendazap/dispatcher/pkg/logger"
	"github.com/agendazap/dispatcher/pkg/pg"
	"github.com/agendazap/dispatcher/pkg/queue"
	"github.com/agendazap/dispatcher/pkg/redis"
	"github.com/agendazap/dispatcher/pkg/transcode"
	"github.com/agendazap/dispatcher/svc/dispatch"
	"github.com/agendazap/dispatcher/svc/sender"
	"github.com/agendazap/dispatcher/svc/store"
)

var errUnknownRole = errors.New("APP_ROLE must be one of all, scheduler, worker")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("dispatcher stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func loadConfigs() (configs, error) {
	var c configs
	err := errors.Join(
		config.Load(&c.app),
		config.Load(&c.dispatch),
		config.Load(&c.pg),
		config.Load(&c.redis),
		config.Load(&c.queue),
		config.Load(&c.media),
		config.Load(&c.evolution),
		config.Load(&c.transcode),
		config.Load(&c.http),
	)
	return c, err
}

func run(ctx context.Context) error {
	cfg, err := loadConfigs()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logOpts := []logger.Option{
		logger.WithEnvironment(cfg.app.Env, cfg.app.Service),
		logger.WithContextExtractors(logger.CorrelationExtractor),
	}
	if cfg.app.LogLevel != "" {
		logOpts = append(logOpts, logger.WithLevelName(cfg.app.LogLevel))
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, cfg.pg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.pg, log); err != nil {
		return err
	}

	repo, err := store.New(pool, store.WithLogger(log))
	if err != nil {
		return err
	}

	tasks, err := queue.NewPGStorage(pool, queue.WithRetryBackoff(cfg.queue.RetryBackoff))
	if err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.app.runsScheduler() {
		rdb, err := redis.Connect(ctx, cfg.redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)})

		trigger, err := newTrigger(cfg, repo, tasks, rdb, log)
		if err != nil {
			return err
		}
		g.Go(trigger.Run(ctx))
	}

	if cfg.app.runsWorker() {
		worker, err := newWorker(ctx, cfg, repo, tasks, log)
		if err != nil {
			return err
		}
		g.Go(worker.Run(ctx))
	}

	server := httpserver.NewFromConfig(cfg.http, httpserver.WithLogger(log))
	g.Go(func() error {
		return server.Run(ctx, httpserver.OpsRouter(log, cfg.http.ProbeTimeout, checks...))
	})

	log.InfoContext(ctx, "dispatcher started",
		slog.String("role", cfg.app.Role),
		slog.String("queue", cfg.dispatch.Queue),
		slog.String("tz", cfg.dispatch.Location().String()),
	)

	return g.Wait()
}

func newTrigger(cfg configs, repo *store.Store, tasks *queue.PGStorage, rdb goredis.UniversalClient, log *slog.Logger) (*dispatch.Trigger, error) {
	locker, err := redis.NewLocker(rdb)
	if err != nil {
		return nil, err
	}

	enqueuer, err := queue.NewEnqueuer(tasks,
		queue.WithDefaultQueue(cfg.dispatch.Queue),
		queue.WithDefaultMaxRetries(cfg.dispatch.MaxRetries),
	)
	if err != nil {
		return nil, err
	}
	submitter, err := dispatch.NewQueueSubmitter(enqueuer, cfg.dispatch.Queue, cfg.dispatch.MaxRetries)
	if err != nil {
		return nil, err
	}

	quota, err := dispatch.NewQuotaTracker(repo, cfg.dispatch.DefaultDailyLimit)
	if err != nil {
		return nil, err
	}

	scheduler, err := dispatch.NewScheduler(repo, quota, repo, locker, submitter,
		dispatch.WithConfig(cfg.dispatch),
		dispatch.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	return dispatch.NewTrigger(scheduler, cfg.dispatch.CronSpec, cfg.dispatch.Location(), log), nil
}

func newWorker(ctx context.Context, cfg configs, repo *store.Store, tasks *queue.PGStorage, log *slog.Logger) (*queue.Worker, error) {
	blobs, err := file.New(ctx, cfg.media)
	if err != nil {
		return nil, err
	}

	opts := []sender.Option{sender.WithLogger(log)}
	if cfg.app.Transcode {
		opts = append(opts, sender.WithTranscoder(transcode.New(cfg.transcode)))
	}

	s, err := sender.New(evolution.NewFromConfig(cfg.evolution), repo, repo, blobs, opts...)
	if err != nil {
		return nil, err
	}

	worker, err := queue.NewWorker(tasks,
		queue.WithQueues(cfg.dispatch.Queue),
		queue.WithWorkerConfig(cfg.queue),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if err := worker.RegisterHandlers(s.Handler()); err != nil {
		return nil, err
	}
	return worker, nil
}
