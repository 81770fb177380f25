package media

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.timeNow = func() time.Time {
		return time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	}
	s.rng = rand.New(rand.NewSource(1))
	return s
}

func TestNewDiskStoreCreatesKindDirs(t *testing.T) {
	root := t.TempDir()
	if _, err := NewDiskStore(root, nil); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{"images", "videos", "voices"} {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", dir, err)
		}
	}
}

func TestDiskStoreSave(t *testing.T) {
	s := newTestDiskStore(t)

	path, err := s.Save(context.Background(), Payload{Raw: []byte("pngbytes")}, KindImage, "pic.png")
	if err != nil {
		t.Fatal(err)
	}

	re := regexp.MustCompile(`images/pic_20250601_123045_[a-z0-9]{6}\.png$`)
	if !re.MatchString(path) {
		t.Errorf("path = %q, want match for %s", path, re)
	}

	data, err := os.ReadFile(filepath.FromSlash(path))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pngbytes" {
		t.Errorf("stored content = %q, want %q", data, "pngbytes")
	}
}

func TestDiskStoreSaveSanitizesTraversal(t *testing.T) {
	s := newTestDiskStore(t)

	path, err := s.Save(context.Background(), Payload{Raw: []byte("x")}, KindImage, "../../escape.png")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(path, "..") {
		t.Errorf("path %q escapes the media root", path)
	}
	if !strings.Contains(path, "images/escape_") {
		t.Errorf("path = %q, want basename under images/", path)
	}
}

func TestDiskStoreSaveRejections(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		payload  Payload
		kind     string
		filename string
		wantErr  error
	}{
		{"empty content", Payload{}, KindImage, "pic.png", ErrEmptyContent},
		{"bad kind", Payload{Raw: []byte("x")}, "document", "doc.pdf", ErrInvalidKind},
		{"wrong extension for kind", Payload{Raw: []byte("x")}, KindVoice, "pic.png", ErrInvalidExtension},
		{"no filename", Payload{Raw: []byte("x")}, KindImage, "", ErrInvalidExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Save(ctx, tt.payload, tt.kind, tt.filename)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
