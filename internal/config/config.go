package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Storage describes the object storage destination.
type Storage struct {
	// Endpoint is the storage API base, e.g. https://<project>.supabase.co/storage/v1.
	Endpoint     string `toml:"endpoint"`
	Bucket       string `toml:"bucket"`
	CacheControl string `toml:"cache_control"`
	Upsert       bool   `toml:"upsert"`
}

// Auth contains the credentials presented to the storage endpoint.
type Auth struct {
	AccessToken     string `toml:"access_token"`
	AccessTokenFile string `toml:"access_token_file"`
	APIKey          string `toml:"api_key"`
}

// Compression contains transcoding settings.
type Compression struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	TargetSizeMB  int    `toml:"target_size_mb"`
	VerifyOutput  bool   `toml:"verify_output"`
}

// Upload contains transfer settings.
type Upload struct {
	ResumableThresholdMB  int   `toml:"resumable_threshold_mb"`
	RetryDelaysMS         []int `toml:"retry_delays_ms"`
	RequestTimeoutSeconds int   `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for callingest.
//
// Configuration sections by subsystem:
//   - Paths: compression workspace, resume index, and log directories
//   - Storage: upload endpoint, bucket, and object options
//   - Auth: bearer token and api key
//   - Compression: ffmpeg/ffprobe binaries and target size
//   - Upload: resumable threshold, retry schedule, request timeout
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Storage     Storage     `toml:"storage"`
	Auth        Auth        `toml:"auth"`
	Compression Compression `toml:"compression"`
	Upload      Upload      `toml:"upload"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("callingest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SessionDBPath returns the location of the resume index database.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// LockDir returns the directory holding per-fingerprint transfer locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// ResumableEndpoint returns the tus creation endpoint derived from the storage endpoint.
func (c *Config) ResumableEndpoint() string {
	base := strings.TrimRight(c.Storage.Endpoint, "/")
	if base == "" {
		return ""
	}
	return base + "/upload/resumable"
}

// ResumableThresholdBytes converts the configured threshold to bytes.
func (c *Config) ResumableThresholdBytes() int64 {
	return int64(c.Upload.ResumableThresholdMB) * 1_000_000
}

// RetryDelays converts the configured retry schedule to durations.
func (c *Config) RetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, len(c.Upload.RetryDelaysMS))
	for _, ms := range c.Upload.RetryDelaysMS {
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	return delays
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Upload.RequestTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrConfigExists is returned by WriteSample when the target already exists
// and Overwrite is false.
var ErrConfigExists = errors.New("config file already exists")

// SampleOptions seeds the generated sample configuration.
type SampleOptions struct {
	Endpoint  string
	Bucket    string
	Overwrite bool
}

// WriteSample writes the annotated sample configuration to path, filling the
// storage endpoint and bucket when provided. The seeded values are validated
// before anything is written.
func WriteSample(path string, opts SampleOptions) error {
	contents := sampleConfig
	seeded := Default()
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		seeded.Storage.Endpoint = strings.TrimRight(endpoint, "/")
		contents = replaceSampleValue(contents, "endpoint", seeded.Storage.Endpoint)
	}
	if bucket := strings.Trim(strings.TrimSpace(opts.Bucket), "/"); bucket != "" {
		seeded.Storage.Bucket = bucket
		contents = replaceSampleValue(contents, "bucket", bucket)
	}
	if err := seeded.validateStorage(); err != nil {
		return err
	}

	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w at %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// replaceSampleValue rewrites the first `key = ...` line of the sample.
func replaceSampleValue(contents, key, value string) string {
	lines := strings.Split(contents, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, key+" = ") {
			lines[i] = key + " = " + strconv.Quote(value)
			break
		}
	}
	return strings.Join(lines, "\n")
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	out := c
	out.Auth.AccessToken = mask(c.Auth.AccessToken)
	out.Auth.APIKey = mask(c.Auth.APIKey)
	out.Upload.RetryDelaysMS = append([]int(nil), c.Upload.RetryDelaysMS...)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
