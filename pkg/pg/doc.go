// Package pg bootstraps the PostgreSQL layer on top of pgx/v5: a retrying pool
// constructor, a health check closure for the readiness probe and goose
// migrations applied from db/migrations at startup.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//	    return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify driver errors so callers do
// not import pgconn.
package pg
