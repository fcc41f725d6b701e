package compression

import "strconv"

// DefaultTargetSizeMB is the compression target used when callers pass zero.
const DefaultTargetSizeMB = 40

// bytesPerMB matches the decimal megabytes used for target sizes.
const bytesPerMB = 1_000_000

const (
	outputSampleRate = 44100
	outputChannels   = 1
	outputCodec      = "libmp3lame"
)

// SelectBitrate picks the MP3 bitrate in kbps for a source of sizeBytes
// compressed toward targetMB. Larger overshoots get lower bitrates.
func SelectBitrate(sizeBytes int64, targetMB int) int {
	if targetMB <= 0 {
		targetMB = DefaultTargetSizeMB
	}
	target := int64(targetMB) * bytesPerMB
	switch {
	case sizeBytes > target*3:
		return 64
	case sizeBytes > target*2:
		return 96
	default:
		return 128
	}
}

// ShouldCompress reports whether sizeBytes exceeds the target.
func ShouldCompress(sizeBytes int64, targetMB int) bool {
	if targetMB <= 0 {
		targetMB = DefaultTargetSizeMB
	}
	return sizeBytes > int64(targetMB)*bytesPerMB
}

// TranscodeArgs returns the ffmpeg arguments that render input as mono 44.1 kHz
// MP3 at bitrateKbps, dropping any video stream.
func TranscodeArgs(input, output string, bitrateKbps int) []string {
	return []string{
		"-i", input,
		"-vn",
		"-ac", strconv.Itoa(outputChannels),
		"-ar", strconv.Itoa(outputSampleRate),
		"-c:a", outputCodec,
		"-b:a", strconv.Itoa(bitrateKbps) + "k",
		output,
	}
}
