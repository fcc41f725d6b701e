package ingest_test

import (
	"errors"
	"os"
	"testing"

	"callingest/internal/ingest"
	"callingest/internal/services"
	"callingest/internal/testsupport"
)

func TestNewPipelineRequiresEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	_, err := ingest.NewPipeline(cfg, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewPipelineWiresCollaborators(t *testing.T) {
	server := testsupport.NewTusServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithEndpoint(server.StorageBase()))

	pipeline, err := ingest.NewPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(func() { _ = pipeline.Close() })

	if got := pipeline.Coordinator.Endpoint(); got != server.Endpoint() {
		t.Fatalf("resumable endpoint = %q, want %q", got, server.Endpoint())
	}
	if pipeline.Orchestrator == nil || pipeline.Engine == nil || pipeline.Direct == nil {
		t.Fatal("pipeline is missing collaborators")
	}
	if _, err := os.Stat(cfg.SessionDBPath()); err != nil {
		t.Fatalf("session db not created: %v", err)
	}
}

func TestDestinationFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.Upsert = true

	dest := ingest.DestinationFromConfig(cfg, "call.mp3")
	if dest.Bucket != "recordings" || dest.Object != "call.mp3" || !dest.Upsert || dest.CacheControl != cfg.Storage.CacheControl {
		t.Fatalf("unexpected destination %+v", dest)
	}
}
