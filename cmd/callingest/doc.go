// Package main hosts the callingest CLI entrypoint and command graph.
//
// The Cobra command tree exposes the ingest pipeline (ingest, compress,
// upload), the local resume index (sessions), readiness reporting (status) and
// configuration scaffolding (config). Configuration resolution, logging setup
// and pipeline wiring are centralized in commandContext so subcommands only
// deal with flags and output.
//
// Results go to stdout and progress to stderr, so `callingest ingest f.wav`
// can be captured by scripts. Interrupting a transfer exits with status 130
// and leaves the upload resumable.
package main
