package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// AudioStore persists synthesized audio and returns the URL clients fetch it from.
type AudioStore interface {
	Save(ctx context.Context, format string, data []byte) (string, error)
}

var formatPattern = regexp.MustCompile(`^[a-z0-9]{2,5}$`)

// FileStore writes audio files into a directory served under baseURL.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory files are written to.
func (s *FileStore) Dir() string { return s.dir }

// Save implements AudioStore.
func (s *FileStore) Save(_ context.Context, format string, data []byte) (string, error) {
	format = strings.ToLower(format)
	if !formatPattern.MatchString(format) {
		return "", fmt.Errorf("invalid audio format %q", format)
	}
	name := uuid.NewString() + "." + format
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	return s.baseURL + "/" + name, nil
}
