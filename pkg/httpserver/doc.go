// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts and slog logging. Run blocks until the context is cancelled or an
// interrupt/TERM signal arrives, then shuts down with a deadline. Errors are
// wrapped with the ErrStart and ErrShutdown sentinels for errors.Is checks.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
package httpserver
