package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"callingest/internal/compression"
	"callingest/internal/credentials"
	"callingest/internal/ingest"
	"callingest/internal/media"
	"callingest/internal/progress"
	"callingest/internal/services"
	"callingest/internal/testsupport"
	"callingest/internal/upload"
)

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) sink(ev progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func checkStream(t *testing.T, events []progress.Event, wantStage progress.Stage) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	terminal := 0
	last := -1.0
	for i, ev := range events {
		if ev.Stage.Terminal() {
			terminal++
		}
		if ev.Percent < last {
			t.Fatalf("event %d regressed from %.2f to %.2f", i, last, ev.Percent)
		}
		last = ev.Percent
	}
	if terminal != 1 {
		t.Fatalf("terminal events = %d, want 1", terminal)
	}
	final := events[len(events)-1]
	if final.Stage != wantStage {
		t.Fatalf("final stage = %s, want %s", final.Stage, wantStage)
	}
	if wantStage == progress.StageDone && final.Percent != 100 {
		t.Fatalf("final percent = %v, want 100", final.Percent)
	}
}

type fakeCompressor struct {
	calls  int
	target int
	err    error
	outDir string
	size   int64
}

func (f *fakeCompressor) Compress(_ context.Context, asset media.Asset, targetSizeMB int, sink progress.Sink) (media.Asset, error) {
	f.calls++
	f.target = targetSizeMB
	sink.Emit(progress.Event{Stage: progress.StageLoading, Percent: 0})
	if f.err != nil {
		sink.Emit(progress.Event{Stage: progress.StageError, Err: f.err})
		return media.Asset{}, f.err
	}
	sink.Emit(progress.Event{Stage: progress.StageCompressing, Percent: 60})
	path := filepath.Join(f.outDir, media.CompressedName(asset.Name))
	if err := os.WriteFile(path, make([]byte, f.size), 0o644); err != nil {
		return media.Asset{}, err
	}
	sink.Emit(progress.Event{Stage: progress.StageDone, Percent: 100})
	return media.FromFile(path)
}

type fakeUploader struct {
	calls int
	got   media.Asset
	dest  upload.Destination
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, asset media.Asset, dest upload.Destination, sink progress.Sink) (upload.Locator, error) {
	f.calls++
	f.got = asset
	f.dest = dest
	sink.Emit(progress.Event{Stage: progress.StageUploading, Percent: 0})
	if f.err != nil {
		sink.Emit(progress.Event{Stage: progress.StageError, Err: f.err})
		return upload.Locator{}, f.err
	}
	sink.Emit(progress.Event{Stage: progress.StageUploading, Percent: 50})
	sink.Emit(progress.Event{Stage: progress.StageDone, Percent: 100})
	return upload.Locator{URL: "https://storage.test/object/" + dest.Bucket + "/" + dest.Object, Bucket: dest.Bucket, Object: dest.Object}, nil
}

func sparseAsset(t *testing.T, name string, size int64) media.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	f.Close()
	asset, err := media.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	return asset
}

func TestPlanFor(t *testing.T) {
	o := ingest.New(&fakeCompressor{}, &fakeUploader{}, &fakeUploader{}, nil)
	tests := []struct {
		name       string
		asset      media.Asset
		opts       ingest.Options
		compress   bool
		bitrate    int
		resumable  bool
	}{
		{"large wav", media.Asset{Name: "a.wav", MimeType: "audio/wav", Size: 80_000_000}, ingest.Options{}, true, 128, true},
		{"very large video", media.Asset{Name: "a.mp4", MimeType: "video/mp4", Size: 200_000_000}, ingest.Options{}, true, 64, true},
		{"under target", media.Asset{Name: "a.wav", MimeType: "audio/wav", Size: 30_000_000}, ingest.Options{}, false, 0, false},
		{"not media", media.Asset{Name: "a.pdf", MimeType: "application/pdf", Size: 80_000_000}, ingest.Options{}, false, 0, true},
		{"disabled", media.Asset{Name: "a.wav", MimeType: "audio/wav", Size: 80_000_000}, ingest.Options{DisableCompression: true}, false, 0, true},
		{"already compressed", media.Asset{Name: "a_compressed.mp3", MimeType: "audio/mpeg", Size: 80_000_000}, ingest.Options{}, false, 0, true},
		{"custom target", media.Asset{Name: "a.wav", MimeType: "audio/wav", Size: 80_000_000}, ingest.Options{CompressionTargetMB: 100}, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := o.PlanFor(tt.asset, tt.opts)
			if plan.Compress != tt.compress || plan.BitrateKbps != tt.bitrate || plan.Resumable != tt.resumable {
				t.Fatalf("plan = %+v", plan)
			}
		})
	}
}

func TestIngestSmallAssetUsesDirectUpload(t *testing.T) {
	compressor := &fakeCompressor{}
	resumable, direct := &fakeUploader{}, &fakeUploader{}
	o := ingest.New(compressor, resumable, direct, nil)
	asset := sparseAsset(t, "call.mp3", 1024)
	rec := &recorder{}

	loc, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings", Object: "call.mp3"}, ingest.Options{}, progress.NewReporter(rec.sink))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if compressor.calls != 0 || resumable.calls != 0 || direct.calls != 1 {
		t.Fatalf("calls compress=%d resumable=%d direct=%d", compressor.calls, resumable.calls, direct.calls)
	}
	if loc.Object != "call.mp3" {
		t.Fatalf("locator = %+v", loc)
	}
	events := rec.snapshot()
	checkStream(t, events, progress.StageDone)
	if events[1].Percent != 50 {
		t.Fatalf("single-phase upload should own the whole range, got %.1f", events[1].Percent)
	}
}

func TestIngestCompressesThenUploadsInBands(t *testing.T) {
	compressor := &fakeCompressor{outDir: t.TempDir(), size: 2048}
	resumable, direct := &fakeUploader{}, &fakeUploader{}
	o := ingest.New(compressor, resumable, direct, nil)
	asset := sparseAsset(t, "call.wav", 90_000_000)
	rec := &recorder{}

	_, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings"}, ingest.Options{}, progress.NewReporter(rec.sink))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if compressor.target != compression.DefaultTargetSizeMB {
		t.Fatalf("target = %d", compressor.target)
	}
	if direct.calls != 1 || resumable.calls != 0 {
		t.Fatalf("compressed output under threshold should go direct: direct=%d resumable=%d", direct.calls, resumable.calls)
	}
	if direct.got.Name != "call_compressed.mp3" || direct.dest.Object != "call_compressed.mp3" {
		t.Fatalf("uploaded %q as %q", direct.got.Name, direct.dest.Object)
	}
	if _, err := os.Stat(direct.got.Path); !os.IsNotExist(err) {
		t.Fatalf("compressed output should be removed, stat err = %v", err)
	}

	events := rec.snapshot()
	checkStream(t, events, progress.StageDone)
	var percents []float64
	for _, ev := range events {
		percents = append(percents, ev.Percent)
	}
	want := []float64{0, 30, 50, 50, 75, 100, 100}
	if !slices.Equal(percents, want) {
		t.Fatalf("percents = %v, want %v", percents, want)
	}
}

func TestIngestCompressedObjectNameGetsMP3Extension(t *testing.T) {
	tests := []struct {
		object string
		want   string
	}{
		{"calls/2026/call.wav", "calls/2026/call.mp3"},
		{"calls/v1.2/call", "calls/v1.2/call.mp3"},
		{"call.MP3", "call.MP3"},
	}
	for _, tt := range tests {
		t.Run(tt.object, func(t *testing.T) {
			compressor := &fakeCompressor{outDir: t.TempDir(), size: 2048}
			resumable, direct := &fakeUploader{}, &fakeUploader{}
			o := ingest.New(compressor, resumable, direct, nil)
			asset := sparseAsset(t, "call.wav", 90_000_000)

			loc, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings", Object: tt.object}, ingest.Options{}, progress.NewReporter())
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if direct.dest.Object != tt.want || loc.Object != tt.want {
				t.Fatalf("object = %q (locator %q), want %q", direct.dest.Object, loc.Object, tt.want)
			}
		})
	}
}

func TestIngestUncompressedKeepsExplicitObjectName(t *testing.T) {
	compressor := &fakeCompressor{outDir: t.TempDir(), size: 2048}
	resumable, direct := &fakeUploader{}, &fakeUploader{}
	o := ingest.New(compressor, resumable, direct, nil)
	asset := sparseAsset(t, "call.wav", 1_000_000)

	if _, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings", Object: "raw/call.wav"}, ingest.Options{}, progress.NewReporter()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if compressor.calls != 0 {
		t.Fatalf("small asset should not be compressed")
	}
	if direct.dest.Object != "raw/call.wav" {
		t.Fatalf("object = %q, want raw/call.wav", direct.dest.Object)
	}
}

func TestIngestCompressionFailureShortCircuits(t *testing.T) {
	compressor := &fakeCompressor{err: services.Wrap(services.ErrTranscode, "compression", "exec", "boom", nil)}
	resumable, direct := &fakeUploader{}, &fakeUploader{}
	o := ingest.New(compressor, resumable, direct, nil)
	asset := sparseAsset(t, "call.wav", 90_000_000)
	rec := &recorder{}

	_, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings"}, ingest.Options{}, progress.NewReporter(rec.sink))
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if resumable.calls+direct.calls != 0 {
		t.Fatal("upload must not start after compression fails")
	}
	checkStream(t, rec.snapshot(), progress.StageError)
}

func TestIngestUploadFailure(t *testing.T) {
	resumable := &fakeUploader{err: services.Wrap(services.ErrFatalUpload, "upload", "patch", "gave up", nil)}
	o := ingest.New(nil, resumable, nil, nil)
	asset := sparseAsset(t, "call.mp3", 1024)
	reporter, events := progress.NewStream()

	done := make(chan error, 1)
	go func() {
		_, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings"}, ingest.Options{}, reporter)
		done <- err
	}()
	var got []progress.Event
	for ev := range events {
		got = append(got, ev)
	}
	if err := <-done; !errors.Is(err, services.ErrFatalUpload) {
		t.Fatalf("expected ErrFatalUpload, got %v", err)
	}
	if resumable.calls != 1 {
		t.Fatalf("nil direct uploader should fall back to resumable, calls=%d", resumable.calls)
	}
	checkStream(t, got, progress.StageError)
}

func TestIngestMissingFile(t *testing.T) {
	o := ingest.New(nil, &fakeUploader{}, nil, nil)
	_, err := o.Ingest(context.Background(), media.Asset{Name: "x.wav", Path: filepath.Join(t.TempDir(), "x.wav")}, upload.Destination{Bucket: "b"}, ingest.Options{}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// stubRuntime renders a fixed-size output without invoking ffmpeg.
type stubRuntime struct {
	dir      string
	outSize  int64
	args     *[]string
	progress chan float64
}

func (s *stubRuntime) Load(context.Context) error { return nil }

func (s *stubRuntime) WriteFile(context.Context, string, string) error { return nil }

func (s *stubRuntime) Exec(_ context.Context, args []string) error {
	*s.args = append([]string(nil), args...)
	f, err := os.Create(filepath.Join(s.dir, args[len(args)-1]))
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(s.outSize)
}

func (s *stubRuntime) ReadFile(name string) (string, error) {
	return filepath.Join(s.dir, name), nil
}

func (s *stubRuntime) Progress() <-chan float64 { return s.progress }

func (s *stubRuntime) Terminate() {}

func TestIngestEndToEndResumable(t *testing.T) {
	const outSize = 55_000_000
	cfg := testsupport.NewConfig(t)
	server := testsupport.NewTusServer(t)
	store := testsupport.MustOpenSessionStore(t, cfg)

	var args []string
	workDir := t.TempDir()
	engine := compression.NewEngine(func() compression.Runtime {
		return &stubRuntime{dir: workDir, outSize: outSize, args: &args, progress: make(chan float64)}
	}, compression.WithOutputDir(t.TempDir()))
	creds := credentials.Static{AccessToken: "test-token", APIKey: "test-key"}
	coordinator := upload.NewCoordinator(server.Endpoint(), creds, store)
	direct := upload.NewDirectUploader(server.StorageBase(), creds, nil, nil)
	o := ingest.New(engine, coordinator, direct, nil)

	asset := sparseAsset(t, "meeting.wav", 80_000_000)
	rec := &recorder{}
	loc, err := o.Ingest(context.Background(), asset, upload.Destination{Bucket: "recordings"}, ingest.Options{
		ResumableThresholdBytes: ingest.DefaultResumableThresholdBytes,
		CompressionTargetMB:     40,
	}, progress.NewReporter(rec.sink))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if !slices.Contains(args, "128k") || !slices.Contains(args, "44100") {
		t.Fatalf("transcode args = %v", args)
	}
	wantChunks := int((outSize + upload.ChunkSize - 1) / upload.ChunkSize)
	if got := server.Count(http.MethodPatch); got != wantChunks {
		t.Fatalf("PATCH count = %d, want %d", got, wantChunks)
	}
	if got := server.Count(http.MethodPost); got != 1 {
		t.Fatalf("POST count = %d, want 1 (session creation only)", got)
	}
	uploads := server.Uploads()
	if len(uploads) != 1 || int64(len(uploads[0].Data)) != outSize {
		t.Fatalf("server received unexpected data")
	}
	if uploads[0].Metadata["contentType"] != "audio/mpeg" {
		t.Fatalf("content type = %q", uploads[0].Metadata["contentType"])
	}
	if loc.Object != "meeting_compressed.mp3" {
		t.Fatalf("locator = %+v", loc)
	}
	checkStream(t, rec.snapshot(), progress.StageDone)
}
