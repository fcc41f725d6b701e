package compression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"callingest/internal/fileutil"
	"callingest/internal/logging"
	"callingest/internal/media"
	"callingest/internal/progress"
	"callingest/internal/services"
)

const (
	workspaceOutput = "output.mp3"

	loadedPercent     = 10.0
	stagedPercent     = 20.0
	transcodeSpan     = 75.0
	transcodedPercent = stagedPercent + transcodeSpan
)

// Job is the observable state of one Compress call.
type Job struct {
	Stage        progress.Stage
	Percent      float64
	TargetSizeMB int
	BitrateKbps  int
	Cancelled    bool
}

// Verifier checks a finished output file. A non-nil error rejects the output.
type Verifier func(ctx context.Context, path string) error

// Option configures an Engine.
type Option func(*Engine)

// WithOutputDir sets where finished compressed files are written. Defaults to
// the directory of the source asset.
func WithOutputDir(dir string) Option {
	return func(e *Engine) { e.outputDir = dir }
}

// WithVerifier enables output verification.
func WithVerifier(v Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "compression") }
}

// Engine shrinks recordings to mono MP3. Each Compress call owns a fresh
// Runtime from the factory; Cancel stops every in-flight call.
type Engine struct {
	factory   RuntimeFactory
	outputDir string
	verifier  Verifier
	logger    *slog.Logger

	mu     sync.Mutex
	active map[*job]struct{}
}

// NewEngine constructs an Engine around factory.
func NewEngine(factory RuntimeFactory, opts ...Option) *Engine {
	e := &Engine{
		factory: factory,
		logger:  logging.NewComponentLogger(nil, "compression"),
		active:  make(map[*job]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type job struct {
	Job
	runtime   Runtime
	once      sync.Once
	cancelled atomic.Bool
	sink      progress.Sink
}

func (j *job) terminate() {
	j.once.Do(j.runtime.Terminate)
}

func (j *job) cancel() {
	j.cancelled.Store(true)
	j.terminate()
}

func (j *job) emit(stage progress.Stage, percent float64, message string) {
	if percent < j.Percent {
		percent = j.Percent
	}
	j.Stage = stage
	j.Percent = percent
	j.sink.Emit(progress.Event{Stage: stage, Percent: percent, Message: message, Phase: "compression"})
}

// Cancel terminates all in-flight compressions; each returns ErrCancelled.
// It is a no-op when nothing is running.
func (e *Engine) Cancel() {
	e.mu.Lock()
	jobs := make([]*job, 0, len(e.active))
	for j := range e.active {
		jobs = append(jobs, j)
	}
	e.mu.Unlock()
	for _, j := range jobs {
		j.cancel()
	}
}

// Active returns the number of in-flight compressions.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Compress transcodes asset to a mono 44.1 kHz MP3 sized toward targetSizeMB
// and returns the new asset. Progress events use the compression phase's own
// 0-100 range and end with exactly one done or error event.
func (e *Engine) Compress(ctx context.Context, asset media.Asset, targetSizeMB int, sink progress.Sink) (media.Asset, error) {
	if targetSizeMB <= 0 {
		targetSizeMB = DefaultTargetSizeMB
	}
	ctx = services.WithStage(ctx, "compression")
	logger := logging.WithContext(ctx, e.logger)

	j := &job{
		Job: Job{
			Stage:        progress.StageLoading,
			TargetSizeMB: targetSizeMB,
			BitrateKbps:  SelectBitrate(asset.Size, targetSizeMB),
		},
		runtime: e.factory(),
		sink:    sink,
	}
	e.register(j)
	defer e.unregister(j)
	defer j.terminate()

	logger.Info("compression started",
		logging.String("asset", asset.Name),
		logging.String("size", humanize.Bytes(uint64(max(asset.Size, 0)))),
		logging.Int("target_mb", targetSizeMB),
		logging.Int("bitrate_kbps", j.BitrateKbps),
	)

	out, err := e.run(ctx, j, asset)
	if err != nil {
		if j.cancelled.Load() || errors.Is(ctx.Err(), context.Canceled) {
			j.Cancelled = true
			err = services.Wrap(services.ErrCancelled, "compression", "compress", "compression cancelled", ctx.Err())
			logger.Info("compression cancelled", logging.String("asset", asset.Name))
		} else {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrRuntimeLoad) && !errors.Is(err, services.ErrTranscode) {
				err = services.Wrap(services.ErrTranscode, "compression", "compress", "compression timed out", err)
			}
			logging.ErrorWithContext(logger, "compression failed", "compression_failed",
				logging.String("asset", asset.Name),
				logging.ErrorKind(err),
				logging.Error(err),
			)
		}
		j.Stage = progress.StageError
		j.sink.Emit(progress.Event{Stage: progress.StageError, Percent: j.Percent, Message: err.Error(), Phase: "compression", Err: err})
		return media.Asset{}, err
	}

	j.emit(progress.StageDone, 100, "compressed to "+humanize.Bytes(uint64(out.Size)))
	logger.Info("compression completed",
		logging.String("asset", asset.Name),
		logging.String("output", out.Path),
		logging.String("size", humanize.Bytes(uint64(out.Size))),
		logging.Int("bitrate_kbps", j.BitrateKbps),
	)
	return out, nil
}

func (e *Engine) run(ctx context.Context, j *job, asset media.Asset) (media.Asset, error) {
	j.emit(progress.StageLoading, 0, "loading transcoder")
	if err := j.checkCancelled(ctx); err != nil {
		return media.Asset{}, err
	}

	if err := j.runtime.Load(ctx); err != nil {
		return media.Asset{}, services.Wrap(services.ErrRuntimeLoad, "compression", "load runtime", "transcoder unavailable", err)
	}
	j.emit(progress.StageLoading, loadedPercent, "transcoder ready")

	inputName := "input" + filepath.Ext(asset.Name)
	if err := j.runtime.WriteFile(ctx, inputName, asset.Path); err != nil {
		return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "stage input", asset.Name, err)
	}
	j.emit(progress.StageCompressing, stagedPercent, fmt.Sprintf("transcoding at %d kbps", j.BitrateKbps))
	if err := j.checkCancelled(ctx); err != nil {
		return media.Asset{}, err
	}

	stop := make(chan struct{})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for {
			select {
			case <-stop:
				return
			case ratio := <-j.runtime.Progress():
				j.emit(progress.StageCompressing, stagedPercent+clampRatio(ratio)*transcodeSpan, "")
			}
		}
	}()
	execErr := j.runtime.Exec(ctx, TranscodeArgs(inputName, workspaceOutput, j.BitrateKbps))
	close(stop)
	<-forwarded
	if execErr != nil {
		return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "exec", "ffmpeg transcode failed", execErr)
	}
	if err := j.checkCancelled(ctx); err != nil {
		return media.Asset{}, err
	}
	j.emit(progress.StageCompressing, transcodedPercent, "transcode finished")

	outPath, err := j.runtime.ReadFile(workspaceOutput)
	if err != nil {
		return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "read output", "", err)
	}
	return e.finalize(ctx, j, asset, outPath)
}

func (e *Engine) finalize(ctx context.Context, j *job, asset media.Asset, outPath string) (media.Asset, error) {
	dir := e.outputDir
	if dir == "" {
		dir = filepath.Dir(asset.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "finalize", "create output dir", err)
	}
	name := media.CompressedName(asset.Name)
	dest := filepath.Join(dir, name)
	if err := fileutil.MoveFile(outPath, dest); err != nil {
		return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "finalize", "move output", err)
	}
	if e.verifier != nil {
		if err := e.verifier(ctx, dest); err != nil {
			_ = os.Remove(dest)
			if cerr := j.checkCancelled(ctx); cerr != nil {
				return media.Asset{}, cerr
			}
			return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "verify output", name, err)
		}
	}
	info, err := os.Stat(dest)
	if err != nil {
		return media.Asset{}, services.Wrap(services.ErrTranscode, "compression", "finalize", "stat output", err)
	}
	return media.Asset{
		Name:     name,
		Path:     dest,
		Size:     info.Size(),
		MimeType: media.CompressedMimeType,
		ModTime:  info.ModTime(),
	}, nil
}

func (j *job) checkCancelled(ctx context.Context) error {
	if j.cancelled.Load() {
		return services.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) register(j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[j] = struct{}{}
}

func (e *Engine) unregister(j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, j)
}

func clampRatio(ratio float64) float64 {
	switch {
	case math.IsNaN(ratio), ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
