package ffprobe

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"slices"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", SampleRate: "48000", Channels: 2},
			{CodecType: "audio", SampleRate: "44100", Channels: 1},
		},
		Format: Format{Duration: "123.45"},
	}
	if result.Count("video") != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.Count("video"))
	}
	if result.Count("AUDIO") != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.Count("AUDIO"))
	}
	audio, ok := result.Audio()
	if !ok {
		t.Fatal("expected an audio stream")
	}
	if audio.SampleRateHz() != 48000 || audio.Channels != 2 {
		t.Fatalf("unexpected first audio stream %+v", audio)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", SampleRate: "n/a"}},
		Format:  Format{Duration: "bad"},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	audio, _ := result.Audio()
	if audio.SampleRateHz() != 0 {
		t.Fatalf("expected sample rate 0, got %d", audio.SampleRateHz())
	}
	if _, ok := (Result{}).Audio(); ok {
		t.Fatal("expected no audio stream")
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{{Duration: "10.5"}, {Duration: "12.25"}, {Duration: ""}}}
	if got := result.DurationSeconds(); got != 12.25 {
		t.Fatalf("expected longest stream duration 12.25, got %v", got)
	}
}

func TestInspectParsesOutput(t *testing.T) {
	withHelper(t, "probe")

	result, err := Inspect(context.Background(), "ffprobe", "/tmp/call.mp3")
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if result.DurationSeconds() != 60 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds())
	}
	stream, ok := result.Audio()
	if !ok || stream.Channels != 1 || stream.SampleRateHz() != 44100 {
		t.Fatalf("unexpected audio stream %+v", stream)
	}
}

func TestInspectFailure(t *testing.T) {
	withHelper(t, "fail")

	if _, err := Inspect(context.Background(), "ffprobe", "/tmp/missing.wav"); err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
}

func TestInspectRequestsSelectedEntries(t *testing.T) {
	var got []string
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		got = args
		return exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--")
	}
	t.Cleanup(func() { commandContext = orig })
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("FFPROBE_HELPER_MODE", "probe")

	if _, err := Inspect(context.Background(), "", "/tmp/call.mp3"); err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if len(got) < 2 || got[len(got)-1] != "/tmp/call.mp3" || got[len(got)-2] != "--" {
		t.Fatalf("expected path after --, got %v", got)
	}
	if !slices.Contains(got, showEntries) {
		t.Fatalf("expected -show_entries %q, got %v", showEntries, got)
	}
}

func TestInspectEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "ffprobe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func withHelper(t *testing.T, mode string) {
	t.Helper()
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFPROBE_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = orig })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFPROBE_HELPER_MODE") {
	case "probe":
		fmt.Fprint(os.Stdout, `{"streams":[{"index":0,"codec_name":"mp3","codec_type":"audio","sample_rate":"44100","channels":1}],"format":{"duration":"60.000000","size":"960000","format_name":"mp3"}}`)
		os.Exit(0)
	default:
		fmt.Fprint(os.Stderr, "No such file or directory")
		os.Exit(1)
	}
}
