// Package log provides Inflow's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that feeds our formatter and
// output pipeline, so slog-aware libraries interoperate while output stays
// consistent across the codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("worker"))
//	l.Info("worker started", log.Int("max_concurrent", 10))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config supporting
// text or JSON formatting and optional file output. To integrate with
// libraries expecting the standard library logger, use RedirectStdLog.
//
// Loggers are constructed once and passed explicitly; the package keeps no
// global default.
package log
