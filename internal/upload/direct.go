package upload

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"callingest/internal/credentials"
	"callingest/internal/logging"
	"callingest/internal/media"
	"callingest/internal/progress"
	"callingest/internal/services"
)

// DirectUploader stores small assets with a single request. It does not
// retry or resume.
type DirectUploader struct {
	base   string
	creds  credentials.Source
	http   *http.Client
	logger *slog.Logger
}

// NewDirectUploader builds an uploader against the storage API base
// (for example https://x.supabase.co/storage/v1).
func NewDirectUploader(base string, creds credentials.Source, client *http.Client, logger *slog.Logger) *DirectUploader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DirectUploader{
		base:   strings.TrimRight(base, "/"),
		creds:  creds,
		http:   client,
		logger: logging.NewComponentLogger(logger, "upload"),
	}
}

// Upload posts the whole asset body to the object URL.
func (d *DirectUploader) Upload(ctx context.Context, asset media.Asset, dest Destination, sink progress.Sink) (Locator, error) {
	loc, err := d.upload(ctx, asset, dest, sink)
	if err != nil {
		sink.Emit(progress.Event{Stage: progress.StageError, Phase: phaseUpload, Message: err.Error(), Err: err})
		return Locator{}, err
	}
	sink.Emit(progress.Event{Stage: progress.StageDone, Percent: 100, Phase: phaseUpload, Message: "upload complete"})
	return loc, nil
}

func (d *DirectUploader) upload(ctx context.Context, asset media.Asset, dest Destination, sink progress.Sink) (Locator, error) {
	if d.creds == nil {
		return Locator{}, services.Wrap(services.ErrConfiguration, "upload", "credential", "no credential source configured", nil)
	}
	cred, err := d.creds.Credential(ctx)
	if err != nil {
		if !errors.Is(err, services.ErrConfiguration) {
			err = services.Wrap(services.ErrConfiguration, "upload", "credential", "", err)
		}
		return Locator{}, err
	}
	if !cred.Valid() {
		return Locator{}, services.Wrap(services.ErrConfiguration, "upload", "credential", "access token is empty", nil)
	}
	dest = dest.withDefaults(asset)
	if dest.Bucket == "" || dest.Object == "" {
		return Locator{}, services.Wrap(services.ErrValidation, "upload", "destination", "bucket and object name are required", nil)
	}

	file, err := os.Open(asset.Path)
	if err != nil {
		return Locator{}, services.Wrap(services.ErrValidation, "upload", "open asset", asset.Path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Locator{}, services.Wrap(services.ErrValidation, "upload", "stat asset", asset.Path, err)
	}

	sink.Emit(progress.Event{Stage: progress.StageUploading, Percent: 0, Phase: phaseUpload, Message: "uploading"})

	target := ObjectURL(d.base, dest.Bucket, dest.Object)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, file)
	if err != nil {
		return Locator{}, services.Wrap(services.ErrValidation, "upload", "build request", target, err)
	}
	req.ContentLength = info.Size()
	setAuth(req, cred)
	contentType := asset.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", cacheControlHeader(dest.CacheControl))
	req.Header.Set("x-upsert", strconv.FormatBool(dest.Upsert))

	resp, err := d.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Locator{}, classify("direct upload", "", ctx.Err())
		}
		return Locator{}, services.Wrap(services.ErrFatalUpload, "upload", "direct upload", target,
			services.Wrap(services.ErrNetwork, "upload", "direct upload", "", err))
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Locator{}, classify("direct upload", "request rejected", newStatusError("direct upload", resp))
	}
	d.logger.Info("direct upload complete",
		logging.String("object", dest.Bucket+"/"+dest.Object),
		logging.Int64("bytes", info.Size()),
	)
	return Locator{URL: target, Bucket: dest.Bucket, Object: dest.Object}, nil
}

// cacheControlHeader turns a bare max-age ("3600") into a header value.
func cacheControlHeader(value string) string {
	if _, err := strconv.Atoi(value); err == nil {
		return "max-age=" + value
	}
	return value
}
