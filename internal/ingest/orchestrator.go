package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"callingest/internal/compression"
	"callingest/internal/logging"
	"callingest/internal/media"
	"callingest/internal/progress"
	"callingest/internal/services"
	"callingest/internal/upload"
)

// DefaultResumableThresholdBytes is the size above which uploads use the
// resumable protocol.
const DefaultResumableThresholdBytes int64 = 50 * 1_000_000

const (
	phaseCompression = "compression"
	phaseUpload      = "upload"
	compressedExt    = ".mp3"
)

// Compressor shrinks an asset toward a target size.
type Compressor interface {
	Compress(ctx context.Context, asset media.Asset, targetSizeMB int, sink progress.Sink) (media.Asset, error)
}

// Uploader stores an asset and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, asset media.Asset, dest upload.Destination, sink progress.Sink) (upload.Locator, error)
}

// Options tunes a single Ingest call. Zero values take the defaults.
type Options struct {
	ResumableThresholdBytes int64
	CompressionTargetMB     int
	DisableCompression      bool
	// KeepCompressed leaves the compressed output on disk after upload.
	KeepCompressed bool
}

func (o Options) withDefaults() Options {
	if o.ResumableThresholdBytes <= 0 {
		o.ResumableThresholdBytes = DefaultResumableThresholdBytes
	}
	if o.CompressionTargetMB <= 0 {
		o.CompressionTargetMB = compression.DefaultTargetSizeMB
	}
	return o
}

// Plan is the routing decision for one asset.
type Plan struct {
	Compress      bool
	BitrateKbps   int
	Resumable     bool
	TargetSizeMB  int
	ThresholdSize int64
}

// Orchestrator runs the compress-then-upload pipeline for one asset at a time
// per call. It is safe for concurrent use when its collaborators are.
type Orchestrator struct {
	compressor Compressor
	resumable  Uploader
	direct     Uploader
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs an orchestrator. direct may be nil, in which case every
// upload goes through resumable.
func New(compressor Compressor, resumable, direct Uploader, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		compressor: compressor,
		resumable:  resumable,
		direct:     direct,
		logger:     logging.NewComponentLogger(logger, "ingest"),
		now:        time.Now,
	}
}

// PlanFor decides whether asset is compressed. The upload route is decided
// after compression, from the size actually uploaded.
func (o *Orchestrator) PlanFor(asset media.Asset, opts Options) Plan {
	opts = opts.withDefaults()
	plan := Plan{TargetSizeMB: opts.CompressionTargetMB, ThresholdSize: opts.ResumableThresholdBytes}
	if !opts.DisableCompression && o.compressor != nil && asset.IsAudioOrVideo() && !asset.IsCompressed() &&
		compression.ShouldCompress(asset.Size, opts.CompressionTargetMB) {
		plan.Compress = true
		plan.BitrateKbps = compression.SelectBitrate(asset.Size, opts.CompressionTargetMB)
	}
	plan.Resumable = asset.Size > opts.ResumableThresholdBytes
	return plan
}

// Ingest compresses asset when it exceeds the target, uploads the result and
// returns its locator. reporter receives one unified 0-100 stream ending in
// exactly one done or error event; a nil reporter discards progress.
func (o *Orchestrator) Ingest(ctx context.Context, asset media.Asset, dest upload.Destination, opts Options, reporter *progress.Reporter) (upload.Locator, error) {
	if reporter == nil {
		reporter = progress.NewReporter()
	}
	opts = opts.withDefaults()

	correlationID := uuid.NewString()
	ctx = services.WithRequestID(ctx, correlationID)
	ctx = services.WithAsset(ctx, asset.Name)
	logger := logging.WithContext(ctx, o.logger)

	loc, err := o.ingest(ctx, logger, asset, dest, opts, reporter)
	if err != nil {
		if services.IsCancellation(err) {
			logger.Info("ingest cancelled")
		} else {
			logging.ErrorWithContext(logger, "ingest failed", "ingest_failed",
				logging.ErrorKind(err),
				logging.Error(err),
			)
		}
		reporter.Fail(err)
		return upload.Locator{}, err
	}
	reporter.Done("stored at " + loc.URL)
	return loc, nil
}

func (o *Orchestrator) ingest(ctx context.Context, logger *slog.Logger, asset media.Asset, dest upload.Destination, opts Options, reporter *progress.Reporter) (upload.Locator, error) {
	if strings.TrimSpace(asset.Path) == "" {
		return upload.Locator{}, services.Wrap(services.ErrValidation, "ingest", "validate", "asset path is empty", nil)
	}
	if o.resumable == nil {
		return upload.Locator{}, services.Wrap(services.ErrConfiguration, "ingest", "validate", "no uploader configured", nil)
	}
	if _, err := os.Stat(asset.Path); err != nil {
		return upload.Locator{}, services.Wrap(services.ErrValidation, "ingest", "validate", asset.Path, err)
	}

	started := o.now()
	plan := o.PlanFor(asset, opts)
	logger.Info("ingest started",
		logging.String("size", humanize.Bytes(uint64(max(asset.Size, 0)))),
		logging.Bool("compress", plan.Compress),
		logging.Int("bitrate_kbps", plan.BitrateKbps),
	)

	uploadLo := 0.0
	source := asset
	if plan.Compress {
		uploadLo = 50
		compressed, err := o.compressor.Compress(ctx, asset, plan.TargetSizeMB, reporter.Band(0, 50, phaseCompression))
		if err != nil {
			return upload.Locator{}, err
		}
		if !opts.KeepCompressed && compressed.Path != asset.Path {
			defer func() {
				if err := os.Remove(compressed.Path); err != nil && !os.IsNotExist(err) {
					logger.Warn("failed to remove compressed output", logging.String("path", compressed.Path), logging.Error(err))
				}
			}()
		}
		logger.Info("compression finished",
			logging.String("output", compressed.Name),
			logging.String("size", humanize.Bytes(uint64(compressed.Size))),
		)
		source = compressed
		if strings.TrimSpace(dest.Object) == "" {
			dest.Object = compressed.Name
		} else {
			dest.Object = compressedObjectName(dest.Object)
		}
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return upload.Locator{}, services.Wrap(services.ErrFatalUpload, "ingest", "upload", "deadline exceeded before upload", err)
		}
		return upload.Locator{}, services.Wrap(services.ErrCancelled, "ingest", "upload", "cancelled before upload", err)
	}

	uploader, route := o.route(source, opts)
	logger.Info("upload started",
		logging.String("route", route),
		logging.String("size", humanize.Bytes(uint64(max(source.Size, 0)))),
	)
	loc, err := uploader.Upload(ctx, source, dest, reporter.Band(uploadLo, 100, phaseUpload))
	if err != nil {
		return upload.Locator{}, err
	}
	logger.Info("ingest completed",
		logging.String("url", loc.URL),
		logging.String("route", route),
		logging.Duration("elapsed", o.now().Sub(started)),
	)
	return loc, nil
}

// compressedObjectName swaps the extension of an explicit object name for
// .mp3 so the key matches the compressed body.
func compressedObjectName(object string) string {
	ext := path.Ext(object)
	if strings.EqualFold(ext, compressedExt) {
		return object
	}
	return strings.TrimSuffix(object, ext) + compressedExt
}

func (o *Orchestrator) route(asset media.Asset, opts Options) (Uploader, string) {
	if asset.Size > opts.ResumableThresholdBytes || o.direct == nil {
		return o.resumable, "resumable"
	}
	return o.direct, "direct"
}

// String renders a plan for logs and dry runs.
func (p Plan) String() string {
	route := "direct"
	if p.Resumable {
		route = "resumable"
	}
	if !p.Compress {
		return "upload " + route
	}
	return fmt.Sprintf("compress at %d kbps, then upload", p.BitrateKbps)
}
