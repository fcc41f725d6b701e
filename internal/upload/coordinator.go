package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"callingest/internal/credentials"
	"callingest/internal/logging"
	"callingest/internal/media"
	"callingest/internal/progress"
	"callingest/internal/services"
	"callingest/internal/sessionstore"
)

const phaseUpload = "upload"

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHTTPClient overrides the HTTP client used for tus requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) {
		if client != nil {
			c.client.http = client
		}
	}
}

// WithRetryPolicy overrides the retry schedule.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Coordinator) { c.policy = policy }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "upload")
		}
	}
}

// WithChunkSize overrides ChunkSize.
func WithChunkSize(size int64) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithStorageBase sets the base used for object locators when it cannot be
// derived from the resumable endpoint.
func WithStorageBase(base string) Option {
	return func(c *Coordinator) {
		if base != "" {
			c.storageBase = base
		}
	}
}

// Coordinator moves assets to storage with the tus resumable protocol. Chunks
// are sent strictly in order; one transfer per fingerprint is allowed at a
// time across processes.
type Coordinator struct {
	client      *tusClient
	storageBase string
	creds       credentials.Source
	index       SessionIndex
	policy      RetryPolicy
	chunkSize   int64
	logger      *slog.Logger
}

// NewCoordinator builds a coordinator for the resumable endpoint.
func NewCoordinator(endpoint string, creds credentials.Source, index SessionIndex, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:      &tusClient{http: &http.Client{Timeout: 2 * time.Minute}, endpoint: endpoint},
		storageBase: StorageBase(endpoint),
		creds:       creds,
		index:       index,
		policy:      DefaultRetryPolicy(),
		chunkSize:   ChunkSize,
		logger:      logging.NewComponentLogger(logging.NewNop(), "upload"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the resumable creation endpoint.
func (c *Coordinator) Endpoint() string {
	return c.client.endpoint
}

// Upload transfers asset to dest, resuming a previous session for the same
// asset when the server still has it. Progress is reported to sink as
// uploaded/total. On failure the session record is kept so a later call can
// resume.
func (c *Coordinator) Upload(ctx context.Context, asset media.Asset, dest Destination, sink progress.Sink) (Locator, error) {
	loc, err := c.upload(ctx, asset, dest, sink)
	if err != nil {
		sink.Emit(progress.Event{Stage: progress.StageError, Phase: phaseUpload, Message: err.Error(), Err: err})
		return Locator{}, err
	}
	sink.Emit(progress.Event{Stage: progress.StageDone, Percent: 100, Phase: phaseUpload, Message: "upload complete"})
	return loc, nil
}

func (c *Coordinator) upload(ctx context.Context, asset media.Asset, dest Destination, sink progress.Sink) (Locator, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		return Locator{}, err
	}
	dest = dest.withDefaults(asset)
	if dest.Bucket == "" || dest.Object == "" {
		return Locator{}, services.Wrap(services.ErrValidation, "upload", "destination", "bucket and object name are required", nil)
	}
	if c.index == nil {
		return Locator{}, services.Wrap(services.ErrConfiguration, "upload", "session index", "no session index configured", nil)
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
	asset.Size = info.Size()
	if asset.ModTime.IsZero() {
		asset.ModTime = info.ModTime()
	}

	fingerprint := Fingerprint(asset, c.client.endpoint)
	unlock, err := c.index.Lock(fingerprint)
	if err != nil {
		if errors.Is(err, sessionstore.ErrLocked) {
			return Locator{}, services.Wrap(services.ErrValidation, "upload", "lock session", "another transfer of this asset is in progress", err)
		}
		return Locator{}, services.Wrap(services.ErrConfiguration, "upload", "lock session", "", err)
	}
	defer unlock()

	ctx = services.WithFingerprint(services.WithStage(ctx, "upload"), fingerprint)
	logger := logging.WithContext(ctx, c.logger).With(logging.String("object", dest.Bucket+"/"+dest.Object))

	session, err := c.openSession(ctx, logger, cred, fingerprint, asset, dest)
	if err != nil {
		return Locator{}, err
	}
	sink.Emit(progress.Event{
		Stage:   progress.StageUploading,
		Percent: session.Percent(),
		Phase:   phaseUpload,
		Message: fmt.Sprintf("uploading %s", humanize.Bytes(uint64(session.BytesTotal))),
	})

	if err := c.transfer(ctx, logger, cred, &session, file, sink); err != nil {
		return Locator{}, err
	}

	if err := c.index.DeleteSession(ctx, fingerprint); err != nil {
		logging.WarnWithContext(logger, "failed to remove completed session record", "session_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale record is discarded on next resume attempt"),
		)
	}
	logger.Info("upload complete", logging.Int64("bytes", session.BytesTotal))
	return Locator{
		URL:    ObjectURL(c.storageBase, session.Bucket, session.Object),
		Bucket: session.Bucket,
		Object: session.Object,
	}, nil
}

func (c *Coordinator) credential(ctx context.Context) (credentials.Credential, error) {
	if c.creds == nil {
		return credentials.Credential{}, services.Wrap(services.ErrConfiguration, "upload", "credential", "no credential source configured", nil)
	}
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			return credentials.Credential{}, err
		}
		return credentials.Credential{}, services.Wrap(services.ErrConfiguration, "upload", "credential", "", err)
	}
	if !cred.Valid() {
		return credentials.Credential{}, services.Wrap(services.ErrConfiguration, "upload", "credential", "access token is empty", nil)
	}
	return cred, nil
}

// openSession resumes the recorded session for fingerprint or creates one.
func (c *Coordinator) openSession(ctx context.Context, logger *slog.Logger, cred credentials.Credential, fingerprint string, asset media.Asset, dest Destination) (Session, error) {
	rec, err := c.index.FindSession(ctx, fingerprint)
	if err != nil {
		logging.WarnWithContext(logger, "session lookup failed; starting a new upload", "session_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "previously uploaded bytes are sent again"),
		)
		rec = nil
	}
	resumable := rec != nil && rec.Size == asset.Size && rec.UploadURL != ""
	if resumable && (rec.Bucket != dest.Bucket || rec.Object != dest.Object) {
		logger.Info("recorded session targets another object; starting a new upload",
			logging.String("recorded_object", rec.Bucket+"/"+rec.Object),
		)
		resumable = false
	}
	if resumable {
		offset, err := c.withRetry(ctx, logger, "query offset", func() (int64, error) {
			return c.client.head(ctx, cred, rec.UploadURL)
		})
		switch {
		case err == nil && offset <= rec.Size:
			logger.Info("resuming upload",
				logging.Int64("offset", offset),
				logging.Int64("size", rec.Size),
			)
			if offset != rec.Offset {
				_ = c.index.UpdateOffset(ctx, fingerprint, offset)
			}
			return Session{
				Fingerprint:   fingerprint,
				UploadURL:     rec.UploadURL,
				ChunkSize:     c.chunkSize,
				BytesUploaded: offset,
				BytesTotal:    rec.Size,
				Bucket:        rec.Bucket,
				Object:        rec.Object,
			}, nil
		case err == nil:
			logger.Warn("server offset exceeds asset size; discarding session", logging.Int64("offset", offset))
		case isGone(err):
			logger.Info("recorded session expired on server; starting a new upload")
		case services.IsCancellation(err):
			return Session{}, classify("query offset", "", err)
		default:
			return Session{}, classify("query offset", "could not read upload offset", err)
		}
	}
	if rec != nil {
		if err := c.index.DeleteSession(ctx, fingerprint); err != nil {
			logger.Warn("failed to discard stale session record", logging.Error(err))
		}
	}

	uploadURL, err := c.withRetryString(ctx, logger, "create upload", func() (string, error) {
		return c.client.create(ctx, cred, createRequest{
			Length:       asset.Size,
			Bucket:       dest.Bucket,
			Object:       dest.Object,
			ContentType:  asset.MimeType,
			CacheControl: dest.CacheControl,
			Upsert:       dest.Upsert,
		})
	})
	if err != nil {
		return Session{}, classify("create upload", "could not create upload session", err)
	}
	now := time.Now()
	record := sessionstore.Record{
		Fingerprint: fingerprint,
		UploadURL:   uploadURL,
		Endpoint:    c.client.endpoint,
		Bucket:      dest.Bucket,
		Object:      dest.Object,
		ContentType: asset.MimeType,
		SourcePath:  asset.Path,
		Size:        asset.Size,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.index.SaveSession(ctx, record); err != nil {
		logging.WarnWithContext(logger, "failed to record upload session", "session_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "an interrupted upload restarts from zero"),
		)
	}
	logger.Info("created upload session", logging.Int64("size", asset.Size))
	return Session{
		Fingerprint: fingerprint,
		UploadURL:   uploadURL,
		ChunkSize:   c.chunkSize,
		BytesTotal:  asset.Size,
		Bucket:      dest.Bucket,
		Object:      dest.Object,
	}, nil
}

// transfer PATCHes the remaining bytes in order. The failure counter covers
// consecutive failures only; any acknowledged progress resets it.
func (c *Coordinator) transfer(ctx context.Context, logger *slog.Logger, cred credentials.Credential, session *Session, file io.ReaderAt, sink progress.Sink) error {
	buf := make([]byte, session.ChunkSize)
	failures := 0
	for session.BytesUploaded < session.BytesTotal {
		offset := session.BytesUploaded
		n := min(session.ChunkSize, session.BytesTotal-offset)
		chunk := buf[:n]
		if _, err := file.ReadAt(chunk, offset); err != nil && !errors.Is(err, io.EOF) {
			return services.Wrap(services.ErrFatalUpload, "upload", "read chunk", fmt.Sprintf("offset %d", offset), err)
		}

		next, err := c.client.patch(ctx, cred, session.UploadURL, offset, chunk)
		if err == nil {
			if next <= offset || next > session.BytesTotal {
				return services.Wrap(services.ErrFatalUpload, "upload", "upload chunk",
					fmt.Sprintf("server acknowledged offset %d after sending %d bytes at %d", next, n, offset), nil)
			}
			failures = 0
			c.advance(ctx, logger, session, next, sink)
			continue
		}
		if ctx.Err() != nil {
			return classify("upload chunk", "", ctx.Err())
		}
		if isGone(err) {
			_ = c.index.DeleteSession(ctx, session.Fingerprint)
			return classify("upload chunk", "upload session no longer exists on server", err)
		}
		if !isTransient(err) {
			return classify("upload chunk", fmt.Sprintf("chunk at offset %d rejected", offset), err)
		}

		failures++
		delay, ok := c.policy.Next(failures)
		if !ok {
			logging.ErrorWithContext(logger, "upload retries exhausted", "upload_retries_exhausted",
				logging.Int("attempts", failures),
				logging.Int64("offset", offset),
				logging.Error(err),
				logging.String(logging.FieldImpact, "session kept; rerun to resume"),
			)
			return services.Wrap(services.ErrFatalUpload, "upload", "upload chunk",
				fmt.Sprintf("chunk at offset %d failed after %d attempts", offset, failures),
				services.Wrap(services.ErrNetwork, "upload", "upload chunk", "", err))
		}
		logger.Warn("chunk upload failed; retrying",
			logging.Int("attempt", failures),
			logging.Int("max_attempts", c.policy.MaxAttempts()),
			logging.Duration("delay", delay),
			logging.Int64("offset", offset),
			logging.Error(err),
		)
		if err := c.policy.Wait(ctx, delay); err != nil {
			return classify("retry wait", "", err)
		}

		serverOffset, herr := c.client.head(ctx, cred, session.UploadURL)
		switch {
		case herr == nil && serverOffset > session.BytesUploaded && serverOffset <= session.BytesTotal:
			failures = 0
			c.advance(ctx, logger, session, serverOffset, sink)
		case herr == nil:
		case isGone(herr):
			_ = c.index.DeleteSession(ctx, session.Fingerprint)
			return classify("query offset", "upload session no longer exists on server", herr)
		case ctx.Err() != nil:
			return classify("query offset", "", ctx.Err())
		default:
			logger.Debug("offset re-sync failed", logging.Error(herr))
		}
	}
	return nil
}

func (c *Coordinator) advance(ctx context.Context, logger *slog.Logger, session *Session, offset int64, sink progress.Sink) {
	session.BytesUploaded = offset
	if err := c.index.UpdateOffset(ctx, session.Fingerprint, offset); err != nil {
		logger.Debug("failed to persist upload offset", logging.Error(err))
	}
	sink.Emit(progress.Event{
		Stage:   progress.StageUploading,
		Percent: session.Percent(),
		Phase:   phaseUpload,
		Message: fmt.Sprintf("%s of %s", humanize.Bytes(uint64(offset)), humanize.Bytes(uint64(session.BytesTotal))),
	})
}

// withRetry runs a single request under the retry policy.
func (c *Coordinator) withRetry(ctx context.Context, logger *slog.Logger, op string, fn func() (int64, error)) (int64, error) {
	var value int64
	err := c.retry(ctx, logger, op, func() error {
		var err error
		value, err = fn()
		return err
	})
	return value, err
}

func (c *Coordinator) withRetryString(ctx context.Context, logger *slog.Logger, op string, fn func() (string, error)) (string, error) {
	var value string
	err := c.retry(ctx, logger, op, func() error {
		var err error
		value, err = fn()
		return err
	})
	return value, err
}

func (c *Coordinator) retry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	for failures := 0; ; {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) {
			return err
		}
		failures++
		delay, ok := c.policy.Next(failures)
		if !ok {
			return fmt.Errorf("%s failed after %d attempts: %w", op, failures, err)
		}
		logger.Warn("request failed; retrying",
			logging.String("operation", op),
			logging.Int("attempt", failures),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.policy.Wait(ctx, delay); err != nil {
			return err
		}
	}
}
