package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"callingest/internal/config"
	"callingest/internal/services"
)

func TestStatic(t *testing.T) {
	cred, err := Static{AccessToken: "tok", APIKey: "key"}.Credential(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "tok" || cred.APIKey != "key" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if _, err := (Static{}).Credential(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv(EnvAccessToken, "")
	if _, err := (Env{}).Credential(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	t.Setenv(EnvAccessToken, " env-token ")
	t.Setenv(EnvAPIKey, "env-key")
	cred, err := (Env{}).Credential(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "env-token" || cred.APIKey != "env-key" {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestFileRereadsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := File{Path: path, APIKey: "key"}

	cred, err := src.Credential(context.Background())
	if err != nil || cred.AccessToken != "first" {
		t.Fatalf("unexpected credential %+v err=%v", cred, err)
	}
	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}
	cred, err = src.Credential(context.Background())
	if err != nil || cred.AccessToken != "second" {
		t.Fatalf("expected rotated token, got %+v err=%v", cred, err)
	}

	if err := os.WriteFile(path, []byte("  "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Credential(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for empty file, got %v", err)
	}
}

func TestChainFallsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	chain := Chain{Static{}, File{Path: path}}
	cred, err := chain.Credential(context.Background())
	if err != nil || cred.AccessToken != "from-file" {
		t.Fatalf("unexpected credential %+v err=%v", cred, err)
	}

	empty := Chain{Static{}, File{}}
	if _, err := empty.Credential(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.AccessToken = "cfg-token"
	cfg.Auth.APIKey = "cfg-key"
	cred, err := FromConfig(&cfg).Credential(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "cfg-token" || cred.APIKey != "cfg-key" {
		t.Fatalf("unexpected credential %+v", cred)
	}

	t.Setenv(EnvAccessToken, "")
	bare := config.Default()
	if _, err := FromConfig(&bare).Credential(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without token, got %v", err)
	}
}
