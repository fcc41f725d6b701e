package services

import "context"

type contextKey int

const (
	stageKey contextKey = iota
	requestIDKey
	assetKey
	fingerprintKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithStage annotates ctx with the pipeline stage (compression, upload).
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, stageKey) }

// WithRequestID annotates ctx with the correlation id of one ingestion call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation id if present.
func RequestIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }

// WithAsset annotates ctx with the name of the asset being ingested.
func WithAsset(ctx context.Context, name string) context.Context {
	return withString(ctx, assetKey, name)
}

// AssetFromContext returns the asset name if present.
func AssetFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, assetKey) }

// WithFingerprint annotates ctx with the resumable upload fingerprint.
func WithFingerprint(ctx context.Context, fingerprint string) context.Context {
	return withString(ctx, fingerprintKey, fingerprint)
}

// FingerprintFromContext returns the upload fingerprint if present.
func FingerprintFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, fingerprintKey)
}
