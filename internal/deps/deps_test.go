package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

var stubScript = []byte("#!/bin/sh\nexit 0\n")

func TestUnavailableSkipsOptionalAndPresent(t *testing.T) {
	statuses := []Status{
		{Name: "FFmpeg", Available: true},
		{Name: "FFprobe", Detail: `binary "ffprobe" not found`},
		{Name: "Extra", Optional: true},
	}

	missing := Unavailable(statuses)
	if len(missing) != 1 || missing[0].Name != "FFprobe" {
		t.Fatalf("Unavailable = %#v", missing)
	}
	if got := Describe(missing); got != `FFprobe (binary "ffprobe" not found)` {
		t.Fatalf("Describe = %q", got)
	}
}

func TestCheckFFmpegFromPath(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	if err := os.WriteFile(ffmpegPath, stubScript, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := CheckFFmpeg("")
	if !status.Available {
		t.Fatalf("expected ffmpeg to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
}

func TestCheckFFprobeSibling(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	ffprobePath := filepath.Join(tmp, executableName("ffprobe"))
	if err := os.WriteFile(ffmpegPath, stubScript, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	if err := os.WriteFile(ffprobePath, stubScript, 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", "")

	status := CheckFFprobe("ffprobe", ffmpegPath)
	if !status.Available {
		t.Fatalf("expected sibling ffprobe to be available, got detail %q", status.Detail)
	}
	if status.Command != ffprobePath {
		t.Fatalf("expected ffprobe command %q, got %q", ffprobePath, status.Command)
	}
}

func TestCheckFFprobeNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := CheckFFprobe("ffprobe", "ffmpeg")
	if status.Available {
		t.Fatal("expected ffprobe resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffprobe is unavailable")
	}
}

func TestResolveBinaryEmpty(t *testing.T) {
	if _, err := ResolveBinary(" "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
