// Package training collects accepted samples into the training corpus and
// schedules classifier retraining.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

type Collector struct {
	corpus    ports.TrainingCorpus
	scheduler *Scheduler
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

func NewCollector(corpus ports.TrainingCorpus, scheduler *Scheduler, observer Observer, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		corpus:    corpus,
		scheduler: scheduler,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordSample appends sample to the corpus and evaluates retraining.
// Blank text is ignored. Scheduling problems are logged, never returned.
func (c *Collector) RecordSample(ctx context.Context, sample domain.TrainingSample) error {
	sample.Text = strings.TrimSpace(sample.Text)
	if sample.Text == "" {
		return nil
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = c.now().UTC()
	}

	size, err := c.corpus.Append(ctx, sample)
	if err != nil {
		return fmt.Errorf("append training sample: %w", err)
	}
	if c.observer != nil {
		c.observer.ObserveTrainingSample(string(sample.Source))
	}

	if c.scheduler == nil {
		return nil
	}
	if _, err := c.scheduler.MaybeRetrain(ctx, size); err != nil {
		c.logger.Warn("retrain_check_failed", "error", err)
	}
	return nil
}
