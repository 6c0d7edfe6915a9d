// Package logging assembles structured slog loggers and formatting helpers used
// across the ridereel pipeline.
//
// It owns the console and JSON handlers, tees the project run log with the
// terminal, applies per-stage level overrides, and exposes context-aware
// helpers so stage code tags lines with run IDs, stages, and cameras. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
