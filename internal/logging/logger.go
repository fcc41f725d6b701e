package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"callingest/internal/config"
)

const logFileName = "callingest.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Output receives every record. Nil means stderr.
	Output io.Writer
	// File, when set, also receives every record in append mode.
	File string
}

// New constructs a slog logger. Debug level adds the source position.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	out, err := opts.writer()
	if err != nil {
		return nil, err
	}
	source := level.Level() <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newConsoleHandler(out, level, source)), nil
	case "json":
		return slog.New(newJSONHandler(out, level, source)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig builds the CLI logger. Records go to stderr so stdout stays
// free for command results; with paths.log_dir set they are also appended to
// callingest.log there.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	opts := Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.File = filepath.Join(dir, logFileName)
	}
	return New(opts)
}

func (o Options) writer() (io.Writer, error) {
	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	path := strings.TrimSpace(o.File)
	if path == "" {
		return out, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return io.MultiWriter(out, file), nil
}

// parseLevel accepts slog level names case-insensitively plus "warning".
// Anything unrecognised is info.
func parseLevel(value string) slog.Level {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}
