// Package logging provides structured logging configuration for interceptd.
//
// This package wraps log/slog to provide consistent logging across all
// interceptd components. It supports configurable log levels, output formats
// and an optional rotating log file.
//
// # Usage
//
// Create a logger with desired configuration:
//
//	logger, closeLog := logging.Open(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	    File:   logging.FileConfig{Path: "/var/log/interceptd.log"},
//	})
//	defer closeLog()
//
//	logger.Info("server started", "port", 4000)
//	logger.Warn("failed to decode request body", "contentType", ct, "error", err)
//
// # Integration
//
// Components should accept a *slog.Logger in their constructor or via an
// option. If no logger is provided, use logging.Nop() for a no-op logger.
package logging
