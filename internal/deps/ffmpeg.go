package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveBinary returns the absolute path of command, resolving bare names via PATH.
func ResolveBinary(command string) (string, error) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return "", fmt.Errorf("command not configured")
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", cmd)
	}
	return resolved, nil
}

// CheckFFprobe reports the ffprobe binary used for duration probing and output
// verification.
//
// Static ffmpeg builds ship ffprobe alongside ffmpeg, often outside PATH. When
// the configured ffprobe cannot be resolved, a sibling of the resolved ffmpeg
// binary is used instead.
func CheckFFprobe(ffprobeCommand, ffmpegCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Reads media duration and verifies compressed output",
	}

	probe := strings.TrimSpace(ffprobeCommand)
	if probe == "" {
		probe = "ffprobe"
	}
	if resolved, err := exec.LookPath(probe); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	if ffmpegPath, err := ResolveBinary(ffmpegCommand); err == nil {
		candidate := siblingBinary(ffmpegPath, "ffprobe")
		if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
			result.Command = candidate
			result.Available = true
			return result
		}
	}

	result.Command = probe
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", probe)
	return result
}

// CheckFFmpeg reports the ffmpeg binary that performs compression.
func CheckFFmpeg(ffmpegCommand string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Transcodes oversized recordings to mono MP3",
	}
	cmd := strings.TrimSpace(ffmpegCommand)
	if cmd == "" {
		cmd = "ffmpeg"
	}
	resolved, err := ResolveBinary(cmd)
	if err != nil {
		result.Command = cmd
		result.Detail = err.Error()
		return result
	}
	result.Command = resolved
	result.Available = true
	return result
}

func siblingBinary(path, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
