// Package media stores inbound media blobs under a logical kind and returns
// the stored path. Two implementations exist: a local disk store and an
// S3-compatible (R2) object store.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"time"
)

// Media kinds. Each kind maps to a directory (or object key prefix) named
// "{kind}s".
const (
	KindImage = "image"
	KindVideo = "video"
	KindVoice = "voice"
)

// Common errors for media operations.
var (
	ErrInvalidKind      = errors.New("invalid media kind")
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrEmptyContent     = errors.New("empty media content")
)

// Extensions lists the accepted file extensions per kind.
var Extensions = map[string][]string{
	KindImage: {"jpg", "jpeg", "png", "gif"},
	KindVideo: {"mp4", "webm", "mov", "avi", "mkv", "3gp"},
	KindVoice: {"wav", "mp3", "m4a"},
}

// MIMETypes maps file extensions to MIME types.
var MIMETypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"3gp":  "video/3gpp",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
}

// Payload carries media content in either of the two accepted encodings:
// raw bytes from a binary frame, or base64 text from the content field.
type Payload struct {
	Raw    []byte
	Base64 string
}

// Bytes resolves the payload to raw bytes. Raw content wins when both are
// set. Returns ErrEmptyContent when neither is present.
func (p Payload) Bytes() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	if p.Base64 != "" {
		data, err := base64.StdEncoding.DecodeString(p.Base64)
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		if len(data) == 0 {
			return nil, ErrEmptyContent
		}
		return data, nil
	}
	return nil, ErrEmptyContent
}

// Empty reports whether the payload carries no content at all.
func (p Payload) Empty() bool {
	return len(p.Raw) == 0 && p.Base64 == ""
}

// Store is the media port: save a blob under a logical kind and filename,
// returning the stored path or key.
type Store interface {
	Save(ctx context.Context, content Payload, kind, filename string) (string, error)
}

// MIMEType returns the MIME type for a filename based on its extension,
// or an empty string when unknown.
func MIMEType(filename string) string {
	return MIMETypes[extension(filename)]
}

// ValidExtension reports whether the filename extension is accepted for the
// given kind.
func ValidExtension(filename, kind string) bool {
	ext := extension(filename)
	for _, allowed := range Extensions[kind] {
		if ext == allowed {
			return true
		}
	}
	return false
}

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// SanitizeFilename strips any directory components to prevent path
// traversal through client-supplied names.
func SanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// uniqueName builds the on-disk name {base}_{YYYYMMDD_HHMMSS}_{6 lowercase
// alphanumerics}.{ext} from an already sanitized filename.
func uniqueName(filename string, now time.Time, rng *rand.Rand) string {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = suffixAlphabet[rng.Intn(len(suffixAlphabet))]
	}

	return fmt.Sprintf("%s_%s_%s%s", base, now.Format("20060102_150405"), suffix, ext)
}

// kindDir returns the directory (or key prefix) for a kind, e.g. "images".
func kindDir(kind string) string {
	return kind + "s"
}
