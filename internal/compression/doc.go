// Package compression shrinks oversized recordings into mono MP3 files.
//
// SelectBitrate maps the overshoot of a source against its target size to
// 64, 96, or 128 kbps. Engine drives one Runtime per call through load, input
// staging, transcode, and output read, reporting progress in the compression
// phase's own 0-100 range (loading up to 20, transcoding 20 to 95, done at
// 100). The runtime is terminated exactly once on every exit path and Cancel
// stops in-flight calls with services.ErrCancelled.
//
// FFmpegRuntime is the production Runtime: a local ffmpeg binary executed in a
// private workspace with -progress output parsed into completion ratios.
package compression
