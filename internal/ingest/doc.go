// Package ingest runs the client-side pipeline for one recording: compress it
// when it is larger than the target, then upload it directly or through the
// resumable protocol depending on the size that remains.
//
// Progress from both phases is folded into a single monotonic 0-100 stream on
// a progress.Reporter: compression owns 0-50 and upload 50-100 when both run,
// otherwise upload owns the whole range.
package ingest
