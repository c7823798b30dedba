// Package logging wraps log/slog with the helpers used across the worker.
//
// Example usage:
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	ctx, log := logging.WithRunID(ctx, logging.WithFeed(logger, feed), logging.NewRunID())
//	log.Info("pipeline started")
//	logging.FromContext(ctx).Debug("same logger, fetched from ctx")
package logging
