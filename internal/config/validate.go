package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Credentials are not required
// here; the upload path reports a missing token when it is first needed so
// compression-only commands work without one.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" {
		return nil
	}
	parsed, err := url.Parse(c.Storage.Endpoint)
	if err != nil {
		return fmt.Errorf("storage.endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("storage.endpoint must use http or https, got %q", c.Storage.Endpoint)
	}
	if parsed.Host == "" {
		return fmt.Errorf("storage.endpoint must include a host, got %q", c.Storage.Endpoint)
	}
	if strings.Contains(c.Storage.Bucket, "/") {
		return errors.New("storage.bucket must not contain '/'")
	}
	return nil
}

// RequireStorage reports whether an upload destination is configured.
func (c *Config) RequireStorage() error {
	if c.Storage.Endpoint == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("storage.endpoint is required for uploads. Edit %s (create with 'callingest config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateCompression() error {
	if c.Compression.TargetSizeMB <= 0 {
		return errors.New("compression.target_size_mb must be positive")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if err := ensurePositiveMap(map[string]int{
		"upload.resumable_threshold_mb":  c.Upload.ResumableThresholdMB,
		"upload.request_timeout_seconds": c.Upload.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	for i, delay := range c.Upload.RetryDelaysMS {
		if delay < 0 {
			return fmt.Errorf("upload.retry_delays_ms[%d] must be >= 0", i)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
