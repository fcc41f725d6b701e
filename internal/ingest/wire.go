package ingest

import (
	"fmt"
	"log/slog"
	"net/http"

	"callingest/internal/compression"
	"callingest/internal/config"
	"callingest/internal/credentials"
	"callingest/internal/services"
	"callingest/internal/sessionstore"
	"callingest/internal/upload"
)

// Pipeline bundles an orchestrator with the collaborators built for it.
type Pipeline struct {
	Orchestrator *Orchestrator
	Engine       *compression.Engine
	Coordinator  *upload.Coordinator
	Direct       *upload.DirectUploader
	Store        *sessionstore.Store
}

// Close releases the session store.
func (p *Pipeline) Close() error {
	if p == nil || p.Store == nil {
		return nil
	}
	return p.Store.Close()
}

// NewPipeline wires the production pipeline from cfg.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ingest: config is required")
	}
	if err := cfg.RequireStorage(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "config", "", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := sessionstore.Open(cfg.SessionDBPath(), cfg.LockDir())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	engine := NewEngine(cfg, logger)

	creds := credentials.FromConfig(cfg)
	client := &http.Client{Timeout: cfg.RequestTimeout()}
	coordinator := upload.NewCoordinator(cfg.ResumableEndpoint(), creds, store,
		upload.WithHTTPClient(client),
		upload.WithRetryPolicy(upload.RetryPolicy{Delays: cfg.RetryDelays()}),
		upload.WithStorageBase(cfg.Storage.Endpoint),
		upload.WithLogger(logger),
	)
	direct := upload.NewDirectUploader(cfg.Storage.Endpoint, creds, client, logger)

	return &Pipeline{
		Orchestrator: New(engine, coordinator, direct, logger),
		Engine:       engine,
		Coordinator:  coordinator,
		Direct:       direct,
		Store:        store,
	}, nil
}

// NewEngine builds the ffmpeg-backed compression engine configured in cfg.
// Finished outputs are written to the work directory.
func NewEngine(cfg *config.Config, logger *slog.Logger) *compression.Engine {
	opts := []compression.Option{
		compression.WithOutputDir(cfg.Paths.WorkDir),
		compression.WithLogger(logger),
	}
	if cfg.Compression.VerifyOutput {
		opts = append(opts, compression.WithVerifier(compression.FFprobeVerifier(cfg.Compression.FFprobeBinary)))
	}
	return compression.NewEngine(compression.NewFFmpegFactory(compression.FFmpegConfig{
		FFmpegBinary:  cfg.Compression.FFmpegBinary,
		FFprobeBinary: cfg.Compression.FFprobeBinary,
		WorkDir:       cfg.Paths.WorkDir,
		Logger:        logger,
	}), opts...)
}

// OptionsFromConfig returns the per-call options configured in cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ResumableThresholdBytes: cfg.ResumableThresholdBytes(),
		CompressionTargetMB:     cfg.Compression.TargetSizeMB,
	}
}

// DestinationFromConfig fills the bucket and cache settings from cfg.
func DestinationFromConfig(cfg *config.Config, object string) upload.Destination {
	return upload.Destination{
		Bucket:       cfg.Storage.Bucket,
		Object:       object,
		CacheControl: cfg.Storage.CacheControl,
		Upsert:       cfg.Storage.Upsert,
	}
}
