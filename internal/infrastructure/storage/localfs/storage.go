package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const defaultRoot = "./data/storage"

var errBadKey = errors.New("invalid storage key")

// Storage keeps uploaded documents as flat files under one root directory.
// Writes land in a temp file first so a reader never sees a partial upload.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if strings.TrimSpace(root) == "" {
		root = defaultRoot
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Storage{root: root}, nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) (err error) {
	dst, err := s.locate(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.locate(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// Resolve maps key to its on-disk path; absolute keys pass through.
func (s *Storage) Resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.root, key)
}

// locate accepts only single path elements so keys cannot leave the root.
func (s *Storage) locate(key string) (string, error) {
	switch {
	case key == "", key == ".", key == "..", strings.ContainsAny(key, `/\`):
		return "", fmt.Errorf("%w %q", errBadKey, key)
	}
	return filepath.Join(s.root, key), nil
}
