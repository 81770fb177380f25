package media

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// DiskStore writes media blobs to the local filesystem under a root
// directory, one subdirectory per kind.
type DiskStore struct {
	root   string
	logger *slog.Logger

	timeNow func() time.Time // for testability
	rng     *rand.Rand
}

// NewDiskStore creates a disk-backed media store rooted at root and ensures
// the per-kind directories exist.
func NewDiskStore(root string, logger *slog.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for kind := range Extensions {
		dir := filepath.Join(root, kindDir(kind))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media directory %s: %w", dir, err)
		}
	}
	return &DiskStore{
		root:    root,
		logger:  logger,
		timeNow: time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Save resolves the payload to bytes, validates the kind and extension, and
// writes the blob under a unique name. Returns the stored path.
func (s *DiskStore) Save(ctx context.Context, content Payload, kind, filename string) (string, error) {
	data, err := content.Bytes()
	if err != nil {
		return "", err
	}

	if _, ok := Extensions[kind]; !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	filename = SanitizeFilename(filename)
	if filename == "" || !ValidExtension(filename, kind) {
		return "", fmt.Errorf("%w: %s for kind %s", ErrInvalidExtension, filename, kind)
	}

	name := uniqueName(filename, s.timeNow(), s.rng)
	dest := filepath.Join(s.root, kindDir(kind), name)

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file %s: %w", dest, err)
	}

	s.logger.Info("saved media file",
		slog.String("kind", kind),
		slog.String("path", dest),
		slog.Int("bytes", len(data)))

	return filepath.ToSlash(dest), nil
}
