package compression

import (
	"context"
	"fmt"

	"callingest/internal/media/ffprobe"
)

var inspect = ffprobe.Inspect

// FFprobeVerifier checks that output is a single mono 44.1 kHz audio stream.
func FFprobeVerifier(binary string) Verifier {
	return func(ctx context.Context, path string) error {
		result, err := inspect(ctx, binary, path)
		if err != nil {
			return err
		}
		return checkOutput(result)
	}
}

func checkOutput(result ffprobe.Result) error {
	if n := result.Count("video"); n > 0 {
		return fmt.Errorf("output contains %d video stream(s)", n)
	}
	if n := result.Count("audio"); n != 1 {
		return fmt.Errorf("output has %d audio streams, want 1", n)
	}
	stream, ok := result.Audio()
	if !ok {
		return fmt.Errorf("output has no audio stream")
	}
	if stream.Channels != outputChannels {
		return fmt.Errorf("output has %d channels, want %d", stream.Channels, outputChannels)
	}
	if rate := stream.SampleRateHz(); rate != outputSampleRate {
		return fmt.Errorf("output sample rate %d Hz, want %d", rate, outputSampleRate)
	}
	return nil
}
