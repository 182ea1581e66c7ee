package training

import (
	"context"
	"sync"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

type corpusFake struct {
	mu        sync.Mutex
	samples   []domain.TrainingSample
	base      int
	appendErr error
}

func (f *corpusFake) Append(_ context.Context, sample domain.TrainingSample) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.samples = append(f.samples, sample)
	return f.base + len(f.samples), nil
}

func (f *corpusFake) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.base + len(f.samples), nil
}

func (f *corpusFake) snapshot() []domain.TrainingSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TrainingSample(nil), f.samples...)
}

type metaStoreFake struct {
	mu    sync.Mutex
	meta  domain.TrainingMeta
	loads int
	saves int
}

func (f *metaStoreFake) Load(context.Context) (domain.TrainingMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.meta, nil
}

func (f *metaStoreFake) Save(_ context.Context, meta domain.TrainingMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.meta = meta
	return nil
}

func (f *metaStoreFake) current() domain.TrainingMeta {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta
}

type retrainerFake struct {
	available bool
	err       error
	release   chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *retrainerFake) Available() bool { return f.available }

func (f *retrainerFake) Run(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *retrainerFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
