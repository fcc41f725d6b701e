package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	if err := c.normalizeAuth(); err != nil {
		return err
	}
	c.normalizeCompression()
	c.normalizeUpload()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(c.Storage.Endpoint), "/")
	c.Storage.Bucket = strings.Trim(strings.TrimSpace(c.Storage.Bucket), "/")
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	c.Storage.CacheControl = strings.TrimSpace(c.Storage.CacheControl)
	if c.Storage.CacheControl == "" {
		c.Storage.CacheControl = defaultCacheControl
	}
}

func (c *Config) normalizeAuth() error {
	c.Auth.AccessToken = strings.TrimSpace(c.Auth.AccessToken)
	if c.Auth.AccessToken == "" {
		if value, ok := os.LookupEnv(envAccessToken); ok {
			c.Auth.AccessToken = strings.TrimSpace(value)
		}
	}
	c.Auth.APIKey = strings.TrimSpace(c.Auth.APIKey)
	if c.Auth.APIKey == "" {
		if value, ok := os.LookupEnv(envAPIKey); ok {
			c.Auth.APIKey = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Auth.AccessTokenFile, err = expandPath(strings.TrimSpace(c.Auth.AccessTokenFile)); err != nil {
		return fmt.Errorf("auth.access_token_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeCompression() {
	c.Compression.FFmpegBinary = strings.TrimSpace(c.Compression.FFmpegBinary)
	if c.Compression.FFmpegBinary == "" {
		c.Compression.FFmpegBinary = defaultFFmpegBinary
	}
	c.Compression.FFprobeBinary = strings.TrimSpace(c.Compression.FFprobeBinary)
	if c.Compression.FFprobeBinary == "" {
		c.Compression.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Compression.TargetSizeMB == 0 {
		c.Compression.TargetSizeMB = defaultTargetSizeMB
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.ResumableThresholdMB == 0 {
		c.Upload.ResumableThresholdMB = defaultResumableThresholdMB
	}
	if len(c.Upload.RetryDelaysMS) == 0 {
		c.Upload.RetryDelaysMS = defaultRetryDelaysMS()
	}
	if c.Upload.RequestTimeoutSeconds == 0 {
		c.Upload.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
