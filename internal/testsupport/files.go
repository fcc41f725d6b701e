package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"callingest/internal/media"
)

// WriteRecording writes size bytes of a repeating pattern to dir/name and
// returns the asset describing it. The pattern varies per byte so a misplaced
// chunk changes the stored content.
func WriteRecording(t testing.TB, dir, name string, size int64) media.Asset {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	asset, err := media.FromFile(path)
	if err != nil {
		t.Fatalf("load asset %s: %v", path, err)
	}
	return asset
}
