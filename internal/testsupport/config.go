package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"callingest/internal/config"
)

// Credentials written into every generated config.
const (
	TestAccessToken = "test-token"
	TestAPIKey      = "test-key"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns a config whose work, state, and log directories live
// under a per-test temp dir and whose credentials are TestAccessToken and
// TestAPIKey. No storage endpoint is set.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Auth.AccessToken = TestAccessToken
	cfg.Auth.APIKey = TestAPIKey

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfg}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithEndpoint sets storage.endpoint, typically TusServer.StorageBase().
func WithEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Endpoint = endpoint
	}
}

// WithAccessToken overrides the bearer token.
func WithAccessToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Auth.AccessToken = token
	}
}

// WithStubbedBinaries writes no-op ffmpeg and ffprobe executables into the
// test directory and points the compression settings at them.
func WithStubbedBinaries() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		b.cfg.Compression.FFmpegBinary = writeStub(b.t, binDir, "ffmpeg")
		b.cfg.Compression.FFprobeBinary = writeStub(b.t, binDir, "ffprobe")
	}
}

func writeStub(t testing.TB, dir, name string) string {
	t.Helper()
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the temp directory backing cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
