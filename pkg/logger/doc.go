// Package logger builds *slog.Logger values with consistent defaults and
// attribute names.
//
// New takes functional options (format, level, static attributes, context
// extractors). WithEnvironment picks text output at debug level for
// development and JSON at info level for staging and production.
//
// Context extractors run on every record, which is how request-scoped values
// such as the request id end up in logs without threading a logger through
// every call:
//
//	log := logger.New(
//	    logger.WithEnvironment(environment.Production, "confeitaria"),
//	    logger.WithContextExtractors(requestid.LogExtractor()),
//	)
//	log.InfoContext(ctx, "webhook acknowledged", logger.EventID(id), logger.Outcome("applied"))
//
// Helpers in attr.go keep key names stable across packages. Secrets must never
// be passed to the logger.
package logger
