package upload_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"callingest/internal/credentials"
	"callingest/internal/media"
	"callingest/internal/progress"
	"callingest/internal/services"
	"callingest/internal/testsupport"
	"callingest/internal/upload"
)

func writeAsset(t *testing.T, name string, data []byte) media.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	asset, err := media.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	return asset
}

func TestDirectUploader(t *testing.T) {
	server := testsupport.NewTusServer(t)
	data := bytes.Repeat([]byte("abc"), 1000)
	asset := writeAsset(t, "call.mp3", data)
	log := &eventLog{}

	uploader := upload.NewDirectUploader(server.StorageBase(), credentials.Static{AccessToken: "tok", APIKey: "key"}, nil, nil)
	loc, err := uploader.Upload(context.Background(), asset, upload.Destination{Bucket: "recordings", Upsert: true}, log.Sink())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if loc.URL != server.StorageBase()+"/object/recordings/call.mp3" {
		t.Fatalf("locator URL = %q", loc.URL)
	}
	got, ok := server.Object("recordings", "call.mp3")
	if !ok || !bytes.Equal(got, data) {
		t.Fatal("object body mismatch")
	}
	headers := server.ObjectHeaders("recordings", "call.mp3")
	if headers.Get("Authorization") != "Bearer tok" || headers.Get("apikey") != "key" {
		t.Fatalf("auth headers = %v", headers)
	}
	if headers.Get("Content-Type") != "audio/mpeg" || headers.Get("Cache-Control") != "max-age=3600" || headers.Get("x-upsert") != "true" {
		t.Fatalf("object headers = %v", headers)
	}

	events := log.Events()
	if len(events) != 2 || events[0].Percent != 0 || events[1].Stage != progress.StageDone || events[1].Percent != 100 {
		t.Fatalf("events = %+v", events)
	}
}

func TestDirectUploaderRejectedCredential(t *testing.T) {
	server := testsupport.NewTusServer(t)
	server.Token = "expected"
	asset := writeAsset(t, "call.mp3", []byte("x"))

	uploader := upload.NewDirectUploader(server.StorageBase(), credentials.Static{AccessToken: "wrong"}, nil, nil)
	_, err := uploader.Upload(context.Background(), asset, upload.Destination{Bucket: "recordings"}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDirectUploaderMissingCredential(t *testing.T) {
	server := testsupport.NewTusServer(t)
	asset := writeAsset(t, "call.mp3", []byte("x"))

	uploader := upload.NewDirectUploader(server.StorageBase(), credentials.Static{}, nil, nil)
	_, err := uploader.Upload(context.Background(), asset, upload.Destination{Bucket: "recordings"}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if server.Count("POST") != 0 {
		t.Fatal("no request should be sent without a credential")
	}
}
