// Package logger builds the service's *slog.Logger and keeps attribute names
// consistent across components.
//
// New creates a text or JSON handler, attaches static attributes and wraps it in
// LogHandlerDecorator, which runs ContextExtractor callbacks on every record.
// CorrelationExtractor is the extractor the dispatcher registers: a send operation
// stores its correlation id with WithCorrelationID and every record logged with
// that context carries it.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "dispatcher"),
//	    logger.WithLevelName(cfg.LogLevel),
//	    logger.WithContextExtractors(logger.CorrelationExtractor),
//	)
//	logger.SetAsDefault(log)
//
//	log.WarnContext(ctx, "quota exhausted",
//	    logger.Owner(def.OwnerID),
//	    logger.DefinitionID(def.ID),
//	)
//
// Error returns an empty attribute for a nil error, so it can be passed without
// a nil check.
package logger
