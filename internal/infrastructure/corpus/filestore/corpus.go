// Package filestore keeps the training corpus and the retrain scheduler
// metadata as JSON files on shared storage.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const lockRetryDelay = 50 * time.Millisecond

// Corpus is a JSON array of training samples. Every append is a full
// read-modify-write under an in-process mutex and an advisory file lock, so
// concurrent writers on other hosts sharing the file do not lose samples.
type Corpus struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu sync.Mutex
}

func NewCorpus(path string, logger *slog.Logger) (*Corpus, error) {
	if path == "" {
		return nil, errors.New("corpus path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Corpus{path: path, lock: flock.New(path + ".lock"), logger: logger}, nil
}

// Append adds one sample and returns the corpus size after the write.
func (c *Corpus) Append(ctx context.Context, sample domain.TrainingSample) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := acquire(ctx, c.lock.TryLockContext); err != nil {
		return 0, fmt.Errorf("lock corpus: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	samples := c.readAll()
	samples = append(samples, sample)
	if err := writeJSONAtomic(c.path, samples); err != nil {
		return 0, fmt.Errorf("write corpus: %w", err)
	}
	return len(samples), nil
}

func (c *Corpus) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := acquire(ctx, c.lock.TryRLockContext); err != nil {
		return 0, fmt.Errorf("lock corpus: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	return len(c.readAll()), nil
}

// readAll treats a missing or unreadable corpus as empty so a damaged file
// never blocks new samples.
func (c *Corpus) readAll() []domain.TrainingSample {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("training_corpus_unreadable", "path", c.path, "error", err)
		}
		return nil
	}
	var samples []domain.TrainingSample
	if err := json.Unmarshal(raw, &samples); err != nil {
		c.logger.Warn("training_corpus_corrupt", "path", c.path, "error", err)
		return nil
	}
	return samples
}

func acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	ok, err := try(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("lock not acquired")
	}
	return nil
}

// writeJSONAtomic writes v next to path and renames it into place.
func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
