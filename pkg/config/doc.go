// Package config loads typed configuration from environment variables.
//
// Every package of the dispatcher declares a Config struct with env and
// envDefault tags (github.com/caarlos0/env). Load parses a struct once and caches
// it by type, so components can ask for their config independently without
// re-reading the environment:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
// A .env file in the working directory is applied on the first Load
// (github.com/joho/godotenv); LoadEnv reads additional files. Variables already
// present in the environment are never overridden.
//
// Structs implementing Validator are checked after parsing and rejected with
// ErrInvalidConfig when Validate fails.
//
// ResetCache clears the cache, which tests use after changing the environment.
package config
