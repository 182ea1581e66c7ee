package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

// MetaStore persists the scheduler state as
// {"lastTrainingCount": n, "lastTrainingAt": unix-millis}.
type MetaStore struct {
	path string
	lock *flock.Flock
}

type metaFile struct {
	LastTrainingCount int   `json:"lastTrainingCount"`
	LastTrainingAt    int64 `json:"lastTrainingAt"`
}

func NewMetaStore(path string) (*MetaStore, error) {
	if path == "" {
		return nil, errors.New("training meta path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create training meta dir: %w", err)
	}
	return &MetaStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Load returns the zero state when no metadata has been written yet.
func (s *MetaStore) Load(ctx context.Context) (domain.TrainingMeta, error) {
	if err := acquire(ctx, s.lock.TryRLockContext); err != nil {
		return domain.TrainingMeta{}, fmt.Errorf("lock training meta: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.TrainingMeta{}, nil
	}
	if err != nil {
		return domain.TrainingMeta{}, fmt.Errorf("read training meta: %w", err)
	}

	var file metaFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return domain.TrainingMeta{}, fmt.Errorf("decode training meta: %w", err)
	}
	meta := domain.TrainingMeta{LastTrainingCount: file.LastTrainingCount}
	if file.LastTrainingAt > 0 {
		meta.LastTrainingAt = time.UnixMilli(file.LastTrainingAt).UTC()
	}
	return meta, nil
}

func (s *MetaStore) Save(ctx context.Context, meta domain.TrainingMeta) error {
	if err := acquire(ctx, s.lock.TryLockContext); err != nil {
		return fmt.Errorf("lock training meta: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	file := metaFile{LastTrainingCount: meta.LastTrainingCount}
	if !meta.LastTrainingAt.IsZero() {
		file.LastTrainingAt = meta.LastTrainingAt.UnixMilli()
	}
	if err := writeJSONAtomic(s.path, file); err != nil {
		return fmt.Errorf("write training meta: %w", err)
	}
	return nil
}
