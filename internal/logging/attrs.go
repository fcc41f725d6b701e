package logging

import (
	"log/slog"
	"math"
	"time"

	"callingest/internal/services"
)

type Attr = slog.Attr

type Value = slog.Value

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Percent records a progress percentage rounded to one decimal.
func Percent(value float64) Attr {
	return slog.Float64("percent", math.Round(value*10)/10)
}

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// ErrorKind records the taxonomy kind of err.
func ErrorKind(err error) Attr { return slog.String(FieldErrorKind, services.Kind(err)) }

func attrsToArgs(attrs []Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger creates a logger with a standardized component attribute.
// If logger is nil, a no-op logger is used as the base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

func findAttr(attrs []Attr, key string) (Attr, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a, true
		}
	}
	return Attr{}, false
}

// withDefaults fills event_type and error_hint, and derives error_kind from an
// error attribute when the caller did not set one.
func withDefaults(attrs []Attr, eventType string) []Attr {
	if _, ok := findAttr(attrs, FieldEventType); !ok {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if _, ok := findAttr(attrs, FieldErrorHint); !ok {
		attrs = append(attrs, String(FieldErrorHint, "check logs for details"))
	}
	if _, ok := findAttr(attrs, FieldErrorKind); !ok {
		if a, found := findAttr(attrs, "error"); found {
			if err, isErr := a.Value.Any().(error); isErr {
				attrs = append(attrs, ErrorKind(err))
			}
		}
	}
	return attrs
}

// WarnWithContext logs a warning with enforced event_type, error_hint, and
// impact fields. Missing fields get defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs, eventType)
	if _, ok := findAttr(attrs, FieldImpact); !ok {
		attrs = append(attrs, String(FieldImpact, "operation continues"))
	}
	logger.Warn(msg, attrsToArgs(attrs)...)
}

// ErrorWithContext logs an error with enforced event_type and error_hint fields.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, attrsToArgs(withDefaults(attrs, eventType))...)
}
