// Package progress carries the unified progress stream of an ingestion call.
//
// A Reporter is the only writer for one call: events are delivered to sinks
// synchronously, percent never regresses, and exactly one terminal event
// (done or error) is emitted. Band remaps a phase's own 0-100 range into a
// slice of the unified stream so compression and upload share one bar.
package progress
