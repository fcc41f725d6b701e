package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"

	"callingest/internal/media"
	"callingest/internal/sessionstore"
)

// ChunkSize is the fixed size of every PATCH body except the last.
const ChunkSize int64 = 6 * 1024 * 1024

const fingerprintPrefix = "tus-br-"

// Destination names where an asset is stored.
type Destination struct {
	Bucket string
	// Object defaults to the asset name.
	Object string
	// Prefix, when set, is joined in front of Object.
	Prefix       string
	CacheControl string
	Upsert       bool
}

func (d Destination) withDefaults(asset media.Asset) Destination {
	d.Bucket = strings.Trim(strings.TrimSpace(d.Bucket), "/")
	d.Object = strings.TrimLeft(strings.TrimSpace(d.Object), "/")
	if d.Object == "" {
		d.Object = objectName(asset.Name)
	}
	if prefix := strings.Trim(strings.TrimSpace(d.Prefix), "/"); prefix != "" && d.Object != "" {
		d.Object = path.Join(prefix, d.Object)
	}
	d.Prefix = ""
	d.CacheControl = strings.TrimSpace(d.CacheControl)
	if d.CacheControl == "" {
		d.CacheControl = "3600"
	}
	return d
}

// objectNameReplacer maps characters storage keys reject or URLs reserve.
var objectNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"#", "",
	"%", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// objectName derives a storage key from a local file name.
func objectName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < ' ' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(objectNameReplacer.Replace(strings.TrimSpace(name)))
}

// Session is the client view of a server-side resumable upload.
type Session struct {
	Fingerprint   string
	UploadURL     string
	ChunkSize     int64
	BytesUploaded int64
	BytesTotal    int64
	Bucket        string
	Object        string
}

// Percent returns uploaded/total as 0-100.
func (s Session) Percent() float64 {
	if s.BytesTotal <= 0 {
		return 100
	}
	return float64(s.BytesUploaded) / float64(s.BytesTotal) * 100
}

// SessionIndex finds and records resumable sessions by fingerprint.
// sessionstore.Store is the production implementation.
type SessionIndex interface {
	FindSession(ctx context.Context, fingerprint string) (*sessionstore.Record, error)
	SaveSession(ctx context.Context, rec sessionstore.Record) error
	UpdateOffset(ctx context.Context, fingerprint string, offset int64) error
	DeleteSession(ctx context.Context, fingerprint string) error
	Lock(fingerprint string) (func(), error)
}

// Fingerprint derives the stable session key for asset uploads to endpoint.
func Fingerprint(asset media.Asset, endpoint string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s",
		asset.Name,
		asset.Size,
		asset.ModTime.UnixMilli(),
		strings.TrimRight(endpoint, "/"),
	)))
	return fingerprintPrefix + hex.EncodeToString(sum[:])
}

// Locator identifies a stored object.
type Locator struct {
	URL    string
	Bucket string
	Object string
}

// ObjectURL returns <base>/object/<bucket>/<object> with each object path
// segment escaped.
func ObjectURL(base, bucket, object string) string {
	segments := strings.Split(strings.TrimLeft(object, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/object/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// StorageBase derives the storage API base from a resumable endpoint.
func StorageBase(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	return strings.TrimSuffix(base, "/upload/resumable")
}
