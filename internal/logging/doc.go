// Package logging assembles the structured slog loggers and formatting
// helpers used across kmsgrab.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and exposes context-aware helpers so capture code can
// automatically tag log lines with capture IDs, pipeline stages, and device
// paths. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the
// rest of the system.
package logging
