package upload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"callingest/internal/services"
)

// statusError is a non-success HTTP response.
type statusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}

func statusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// isTransient reports whether err warrants a retry: transport failures, 5xx,
// and the tus conflict/lock/rate-limit statuses.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if code := statusCode(err); code != 0 {
		switch {
		case code >= 500:
			return true
		case code == http.StatusConflict, code == http.StatusLocked, code == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) || errors.Is(err, errTransport)
}

// errTransport tags request failures that never produced a response.
var errTransport = errors.New("transport failure")

// isGone reports whether the server no longer knows the upload.
func isGone(err error) bool {
	code := statusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

// classify maps a non-retried failure to the error taxonomy.
func classify(operation, message string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrCancelled, "upload", operation, "upload cancelled; session kept for resume", err)
	case statusCode(err) == http.StatusUnauthorized, statusCode(err) == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "upload", operation, "credential rejected", err)
	default:
		return services.Wrap(services.ErrFatalUpload, "upload", operation, message, err)
	}
}
