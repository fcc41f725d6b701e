package testsupport

import (
	"testing"

	"callingest/internal/config"
	"callingest/internal/sessionstore"
)

// MustOpenSessionStore opens a sessionstore.Store for tests and registers cleanup.
func MustOpenSessionStore(t testing.TB, cfg *config.Config) *sessionstore.Store {
	t.Helper()

	store, err := sessionstore.Open(cfg.SessionDBPath(), cfg.LockDir())
	if err != nil {
		t.Fatalf("sessionstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
