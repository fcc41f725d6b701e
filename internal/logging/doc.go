// Package logging assembles structured slog loggers and formatting helpers used
// across the ingestion components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with stage names, asset names, and correlation IDs. A progress sampler
// keeps chunk and transcode progress from flooding the log, and a no-op
// logger serves tests and wiring code that cannot fail.
package logging
