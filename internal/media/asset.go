package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// CompressedMimeType is the content type of every compressed asset.
const CompressedMimeType = "audio/mpeg"

const compressedSuffix = "_compressed.mp3"

// Asset is an immutable description of a recording to ingest.
type Asset struct {
	Name     string
	Path     string
	Size     int64
	MimeType string
	ModTime  time.Time
}

// FromFile stats path and builds an Asset, inferring the MIME type from the
// extension and falling back to content sniffing for unknown extensions.
func FromFile(path string) (Asset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Asset{}, fmt.Errorf("media asset: empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("media asset: %w", err)
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("media asset: %s is a directory", path)
	}
	mimeType := MimeTypeForName(path)
	if mimeType == "" {
		mimeType = sniffMimeType(path)
	}
	return Asset{
		Name:     filepath.Base(path),
		Path:     path,
		Size:     info.Size(),
		MimeType: mimeType,
		ModTime:  info.ModTime(),
	}, nil
}

// MimeTypeForName maps common recording extensions to content types. It
// returns "" for unknown extensions.
func MimeTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".opus":
		return "audio/opus"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".webm":
		return "video/webm"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	default:
		return ""
	}
}

func sniffMimeType(path string) string {
	detected, err := mimetype.DetectFile(path)
	if err != nil || detected == nil {
		return "application/octet-stream"
	}
	mt := detected.String()
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}

// IsAudioOrVideo reports whether the asset carries an audio or video payload.
func (a Asset) IsAudioOrVideo() bool {
	mt := strings.ToLower(a.MimeType)
	return strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/")
}

// Stem returns the asset name without its extension.
func (a Asset) Stem() string {
	return strings.TrimSuffix(a.Name, filepath.Ext(a.Name))
}

// CompressedName returns the derived name of the compressed rendition.
func CompressedName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "recording"
	}
	return stem + compressedSuffix
}

// IsCompressed reports whether the asset is a compressed rendition.
func (a Asset) IsCompressed() bool {
	return strings.HasSuffix(a.Name, compressedSuffix) && a.MimeType == CompressedMimeType
}
