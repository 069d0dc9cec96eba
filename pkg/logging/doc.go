// Package logging provides structured logging configuration for imposterd.
//
// This package wraps log/slog to provide consistent logging across all
// components. It supports configurable log levels and output formats.
//
// # Usage
//
// The server logs to a file and mirrors to stderr when attached to a terminal:
//
//	log, closer, err := logging.Open(logging.FileConfig{
//	    Config: logging.Config{Level: logging.LevelInfo, Format: logging.FormatJSON},
//	    Path:   "mb.log",
//	})
//	defer closer.Close()
//
//	log.Info("imposter created", "protocol", "http", "port", 4545)
//
// Per-imposter events carry a scope attribute:
//
//	logging.Scoped(log, "http", 4545).Warn("teardown failed", "error", err)
//
// # Integration
//
// Components should accept a *slog.Logger in their constructor.
// If no logger is provided, use logging.Nop() for a no-op logger.
package logging
