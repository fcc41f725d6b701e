// Package ffprobe runs ffprobe and decodes the handful of fields callingest
// reads from it.
//
// The compression runtime uses DurationSeconds to turn ffmpeg's out_time into
// a completion ratio, and the output verifier uses Count and Audio to confirm a
// compressed file holds exactly one mono 44.1 kHz audio stream.
package ffprobe
