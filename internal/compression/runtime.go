package compression

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"callingest/internal/deps"
	"callingest/internal/fileutil"
	"callingest/internal/logging"
	"callingest/internal/media/ffprobe"
)

var commandContext = exec.CommandContext

var probeDuration = func(ctx context.Context, binary, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, binary, path)
	if err != nil {
		return 0, err
	}
	return result.DurationSeconds(), nil
}

// Runtime is the transcoding environment owned by a single compression job.
// Names passed to WriteFile, Exec, and ReadFile are relative to the runtime's
// private workspace.
type Runtime interface {
	// Load acquires and initializes the transcoder.
	Load(ctx context.Context) error
	// WriteFile stages the file at src into the workspace as name.
	WriteFile(ctx context.Context, name, src string) error
	// Exec runs the transcoder with args and blocks until it exits.
	Exec(ctx context.Context, args []string) error
	// ReadFile returns the on-disk path of a workspace file.
	ReadFile(name string) (string, error)
	// Progress delivers completion ratios in [0, 1] while Exec runs. The
	// channel is never closed; receivers stop on their own signal.
	Progress() <-chan float64
	// Terminate stops any running process and releases the workspace. It is
	// safe to call more than once.
	Terminate()
}

// RuntimeFactory builds a fresh Runtime for each compression call.
type RuntimeFactory func() Runtime

// FFmpegConfig configures FFmpegRuntime.
type FFmpegConfig struct {
	FFmpegBinary  string
	FFprobeBinary string
	// WorkDir is the parent of per-job workspaces; os.TempDir when empty.
	WorkDir string
	Logger  *slog.Logger
}

// NewFFmpegFactory returns a RuntimeFactory producing FFmpegRuntime instances.
func NewFFmpegFactory(cfg FFmpegConfig) RuntimeFactory {
	return func() Runtime { return NewFFmpegRuntime(cfg) }
}

// FFmpegRuntime runs a local ffmpeg binary inside a temporary workspace.
type FFmpegRuntime struct {
	cfg    FFmpegConfig
	logger *slog.Logger

	progress chan float64

	mu         sync.Mutex
	binary     string
	dir        string
	duration   float64
	cancel     context.CancelFunc
	terminated bool
}

// NewFFmpegRuntime constructs an unloaded runtime.
func NewFFmpegRuntime(cfg FFmpegConfig) *FFmpegRuntime {
	if strings.TrimSpace(cfg.FFmpegBinary) == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(cfg.FFprobeBinary) == "" {
		cfg.FFprobeBinary = "ffprobe"
	}
	return &FFmpegRuntime{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(cfg.Logger, "ffmpeg"),
		progress: make(chan float64, 16),
	}
}

// Load resolves the ffmpeg binary, checks that it runs, and creates the workspace.
func (r *FFmpegRuntime) Load(ctx context.Context) error {
	binary, err := deps.ResolveBinary(r.cfg.FFmpegBinary)
	if err != nil {
		return err
	}
	cmd := commandContext(ctx, binary, "-hide_banner", "-version") //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffmpeg -version: %w", err)
	}
	if !bytes.Contains(output, []byte("ffmpeg version")) {
		return fmt.Errorf("ffmpeg -version: unexpected output %q", firstLine(output))
	}

	if r.cfg.WorkDir != "" {
		if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.cfg.WorkDir, "compress-")
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated {
		_ = os.RemoveAll(dir)
		return errors.New("runtime terminated")
	}
	r.binary = binary
	r.dir = dir
	r.logger.Debug("ffmpeg runtime loaded",
		logging.String("binary", binary),
		logging.String("workspace", dir),
		logging.String("version", firstLine(output)),
	)
	return nil
}

// WriteFile links or copies src into the workspace and probes its duration
// for progress reporting. A failed probe leaves progress at start and end only.
func (r *FFmpegRuntime) WriteFile(ctx context.Context, name, src string) error {
	dst, err := r.workspacePath(name)
	if err != nil {
		return err
	}
	if err := fileutil.LinkOrCopy(src, dst); err != nil {
		return err
	}
	duration, err := probeDuration(ctx, r.cfg.FFprobeBinary, dst)
	if err != nil {
		r.logger.Debug("duration probe failed; transcode progress limited",
			logging.String("path", src),
			logging.Error(err),
		)
		return nil
	}
	r.mu.Lock()
	r.duration = duration
	r.mu.Unlock()
	return nil
}

// Exec runs ffmpeg with args inside the workspace, publishing progress ratios.
func (r *FFmpegRuntime) Exec(ctx context.Context, args []string) error {
	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return errors.New("runtime terminated")
	}
	if r.dir == "" {
		r.mu.Unlock()
		return errors.New("runtime not loaded")
	}
	execCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	binary, dir, duration := r.binary, r.dir, r.duration
	r.mu.Unlock()
	defer cancel()

	fullArgs := append([]string{"-hide_banner", "-nostats", "-y", "-progress", "pipe:1"}, args...)
	cmd := commandContext(execCtx, binary, fullArgs...) //nolint:gosec
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	r.scanProgress(stdout, duration)

	if err := cmd.Wait(); err != nil {
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(tail))
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

func (r *FFmpegRuntime) scanProgress(stdout io.Reader, duration float64) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if duration <= 0 {
				continue
			}
			micros, err := strconv.ParseInt(value, 10, 64)
			if err != nil || micros < 0 {
				continue
			}
			r.publish(float64(micros) / 1e6 / duration)
		case "progress":
			if value == "end" {
				r.publish(1)
			}
		}
	}
}

func (r *FFmpegRuntime) publish(ratio float64) {
	if ratio > 1 {
		ratio = 1
	}
	select {
	case r.progress <- ratio:
	default:
	}
}

// ReadFile returns the path of name inside the workspace.
func (r *FFmpegRuntime) ReadFile(name string) (string, error) {
	path, err := r.workspacePath(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("read %s: empty output", name)
	}
	return path, nil
}

// Progress returns the ratio channel.
func (r *FFmpegRuntime) Progress() <-chan float64 {
	return r.progress
}

// Terminate kills a running ffmpeg process and removes the workspace.
func (r *FFmpegRuntime) Terminate() {
	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return
	}
	r.terminated = true
	cancel, dir := r.cancel, r.dir
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("workspace cleanup failed",
				logging.String("workspace", dir),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}
}

func (r *FFmpegRuntime) workspacePath(name string) (string, error) {
	r.mu.Lock()
	dir, terminated := r.dir, r.terminated
	r.mu.Unlock()
	if terminated {
		return "", errors.New("runtime terminated")
	}
	if dir == "" {
		return "", errors.New("runtime not loaded")
	}
	clean := filepath.Base(strings.TrimSpace(name))
	if clean == "." || clean == string(filepath.Separator) || clean == "" {
		return "", fmt.Errorf("invalid workspace name %q", name)
	}
	return filepath.Join(dir, clean), nil
}

// tailBuffer keeps the last few KiB written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

const tailLimit = 4096

func (t *tailBuffer) Write(p []byte) (int, error) {
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - tailLimit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(line)
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}

var _ Runtime = (*FFmpegRuntime)(nil)
