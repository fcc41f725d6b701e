package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"callingest/internal/config"
	"callingest/internal/credentials"
	"callingest/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCredential verifies that a bearer token can be resolved without
// contacting the server.
func CheckCredential(ctx context.Context, cfg *config.Config) Result {
	const name = "Credential"

	cred, err := credentials.FromConfig(cfg).Credential(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := "access token present"
	if cred.APIKey == "" {
		detail += " (no api key)"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckStorage verifies that the storage endpoint is reachable and accepts the
// configured credential by reading the configured bucket.
func CheckStorage(ctx context.Context, cfg *config.Config) Result {
	const name = "Storage"

	base := strings.TrimRight(strings.TrimSpace(cfg.Storage.Endpoint), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	cred, err := credentials.FromConfig(cfg).Credential(ctx)
	if err != nil {
		return Result{Name: name, Detail: "skipped (no credential)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	target := base + "/bucket/" + url.PathEscape(cfg.Storage.Bucket)
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if cred.APIKey != "" {
		req.Header.Set("apikey", cred.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q reachable", cfg.Storage.Bucket)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid access token)"}
	case http.StatusNotFound, http.StatusBadRequest:
		return Result{Name: name, Detail: fmt.Sprintf("bucket %q not found", cfg.Storage.Bucket)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// CheckSystemDeps evaluates the transcoding binaries for the given config.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return []deps.Status{
		deps.CheckFFmpeg(cfg.Compression.FFmpegBinary),
		deps.CheckFFprobe(cfg.Compression.FFprobeBinary, cfg.Compression.FFmpegBinary),
	}
}

func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (storage unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (storage unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
