package training

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

const (
	DefaultMinSamples  = 20
	DefaultMinInterval = 30 * time.Minute
)

// Observer receives retrain outcomes ("success", "failed", "spawn_error").
type Observer interface {
	ObserveRetrain(outcome string)
	ObserveTrainingSample(source string)
}

type SchedulerConfig struct {
	MinSamples  int
	MinInterval time.Duration
}

// Scheduler launches at most one retraining job per process.
//
// The running flag and the metadata cache are in-memory only; deployments
// with several processes sharing one corpus need an external lock to keep
// the single-job guarantee.
type Scheduler struct {
	retrainer ports.Retrainer
	corpus    ports.TrainingCorpus
	meta      *MetaCache
	cfg       SchedulerConfig
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewScheduler(
	retrainer ports.Retrainer,
	corpus ports.TrainingCorpus,
	meta *MetaCache,
	cfg SchedulerConfig,
	observer Observer,
	logger *slog.Logger,
) *Scheduler {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		retrainer: retrainer,
		corpus:    corpus,
		meta:      meta,
		cfg:       cfg,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Running reports whether a retrain job is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// MaybeRetrain launches a retrain job when the corpus has grown enough and
// the debounce interval has passed. It is safe to call after every sample.
func (s *Scheduler) MaybeRetrain(ctx context.Context, corpusSize int) (bool, error) {
	if s.running.Load() {
		return false, nil
	}
	if s.retrainer == nil || !s.retrainer.Available() {
		return false, nil
	}

	meta, err := s.meta.Get(ctx)
	if err != nil {
		return false, err
	}
	pending := corpusSize - meta.LastTrainingCount
	if pending < s.cfg.MinSamples {
		return false, nil
	}
	if !meta.LastTrainingAt.IsZero() && s.now().Sub(meta.LastTrainingAt) < s.cfg.MinInterval {
		return false, nil
	}

	if !s.running.CompareAndSwap(false, true) {
		return false, nil
	}
	s.logger.Info("retrain_started", "corpus_size", corpusSize, "pending", pending)

	s.wg.Add(1)
	go s.run()
	return true, nil
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	defer s.running.Store(false)

	err := s.retrainer.Run(s.baseCtx)
	if err != nil {
		outcome := "failed"
		if domain.IsKind(err, domain.ErrToolUnavailable) {
			outcome = "spawn_error"
		}
		s.logger.Warn("retrain_failed", "outcome", outcome, "error", err)
		s.observe(outcome)
		return
	}

	size, err := s.corpus.Count(s.baseCtx)
	if err != nil {
		s.logger.Warn("retrain_count_failed", "error", err)
		s.observe("failed")
		return
	}
	if err := s.meta.Put(s.baseCtx, domain.TrainingMeta{LastTrainingCount: size, LastTrainingAt: s.now()}); err != nil {
		s.logger.Warn("retrain_meta_save_failed", "error", err)
		s.observe("failed")
		return
	}
	s.logger.Info("retrain_finished", "corpus_size", size)
	s.observe("success")
}

func (s *Scheduler) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveRetrain(outcome)
	}
}

// Wait blocks until the in-flight job, if any, has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels a running job and waits for it.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}
