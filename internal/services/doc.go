// Package services defines shared utilities consumed by the ingestion
// components.
//
// Key responsibilities:
//   - Context helpers that stamp stage names, asset names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so every failure carries
//     one taxonomy kind (configuration, runtime load, transcode, cancellation,
//     network, fatal upload) that callers test with errors.Is.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across compression and upload.
package services
