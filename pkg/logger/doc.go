// Package logger provides a context-aware wrapper around Go's slog package:
// a single factory - New - configured through functional options, helper
// attribute constructors for consistent key naming, and transparent
// injection of context values into every record.
//
// Usage:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "taskbeacond"),
//		logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "cleanup finished",
//		logger.Component("notify.store"),
//		logger.Count(removed),
//	)
//
// Helper constructors such as Error, Subject, Source and Component live in
// attr.go. Error and Errors produce attributes only for non-nil errors, so
// they can be passed unconditionally.
package logger
