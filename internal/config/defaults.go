package config

const (
	defaultConfigPath            = "~/.config/callingest/config.toml"
	defaultWorkDir               = "~/.local/share/callingest/work"
	defaultStateDir              = "~/.local/share/callingest/state"
	defaultLogDir                = "~/.local/share/callingest/logs"
	defaultBucket                = "recordings"
	defaultCacheControl          = "3600"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultTargetSizeMB          = 40
	defaultResumableThresholdMB  = 50
	defaultRequestTimeoutSeconds = 120
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"

	envAccessToken = "CALLINGEST_ACCESS_TOKEN"
	envAPIKey      = "CALLINGEST_API_KEY"
)

func defaultRetryDelaysMS() []int {
	return []int{0, 3000, 5000, 10000, 20000}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Storage: Storage{
			Bucket:       defaultBucket,
			CacheControl: defaultCacheControl,
		},
		Compression: Compression{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			TargetSizeMB:  defaultTargetSizeMB,
			VerifyOutput:  true,
		},
		Upload: Upload{
			ResumableThresholdMB:  defaultResumableThresholdMB,
			RetryDelaysMS:         defaultRetryDelaysMS(),
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
