// Package httpserver runs the dispatcher's operational HTTP endpoint.
//
// Server binds on Run, serves until the context is cancelled and then shuts
// down within the configured timeout, so it fits an errgroup next to the queue
// worker and the minute trigger:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	router := httpserver.OpsRouter(log, cfg.ProbeTimeout,
//	    httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//	    httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)},
//	)
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// GET /livez always answers ALIVE; GET /readyz answers READY only when every
// check passes and 503 NOT_READY otherwise.
package httpserver
