package training

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

var ErrQueueClosed = errors.New("training queue closed")

// Queue hands training samples to a background consumer so the extraction
// pipeline only waits for acceptance.
type Queue struct {
	collector *Collector
	logger    *slog.Logger
	items     chan domain.TrainingSample

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewQueue(collector *Collector, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		collector: collector,
		logger:    logger,
		items:     make(chan domain.TrainingSample, size),
		done:      make(chan struct{}),
	}
}

// Submit enqueues sample. A full queue records it synchronously instead of
// dropping it.
func (q *Queue) Submit(ctx context.Context, sample domain.TrainingSample) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- sample:
		return nil
	default:
	}
	q.logger.Warn("training_queue_full", "template_id", sample.TemplateID)
	return q.collector.RecordSample(ctx, sample)
}

// Run consumes submissions until Close is called and the queue is drained.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for sample := range q.items {
		if err := q.collector.RecordSample(ctx, sample); err != nil {
			q.logger.Warn("training_sample_failed", "template_id", sample.TemplateID, "source", sample.Source, "error", err)
		}
	}
}

// Close stops accepting submissions and waits for Run to drain the queue.
// Run must have been started.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()
	<-q.done
}
