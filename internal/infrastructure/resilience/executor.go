package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor whether a failed call may be
// repeated and whether it counts against the breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// StateObserver is told about every circuit breaker transition.
type StateObserver func(operation, from, to string)

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithStateObserver(observer StateObserver) Option {
	return func(e *Executor) { e.onStateChange = observer }
}

// Executor wraps outbound calls (remote inference, event publishing) in
// retries and one circuit breaker per operation name.
type Executor struct {
	retry         RetryPolicy
	breaker       BreakerPolicy
	logger        *slog.Logger
	onStateChange StateObserver

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, opts ...Option) *Executor {
	cfg = cfg.normalize()
	e := &Executor{
		retry:    cfg.Retry,
		breaker:  cfg.Breaker,
		logger:   slog.Default(),
		breakers: map[string]*gobreaker.CircuitBreaker[struct{}]{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if classifier == nil {
		classifier = recordEverything
	}

	attempt := func() error { return e.withRetries(ctx, operation, fn, classifier) }
	if !e.breaker.Enabled {
		return attempt()
	}
	_, err := e.breakerFor(operation, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, attempt()
	})
	return err
}

// Do is Execute for calls that produce a value.
func Do[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classifier ErrorClassifier) (T, error) {
	var result T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
		}
		return err
	}, classifier)
	return result, err
}

func (e *Executor) withRetries(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	delay := e.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.retry.MaxAttempts || !classifier(err).Retryable {
			return err
		}

		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.retry.MaxAttempts,
			"backoff_ms", delay.Milliseconds(),
			"error", err,
		)
		if !sleep(ctx, delay) {
			return err
		}
		delay = e.nextDelay(delay)
	}
}

func (e *Executor) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * e.retry.Multiplier)
	return min(next, e.retry.MaxBackoff)
}

// sleep reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Executor) breakerFor(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	policy := e.breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= policy.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: e.stateChanged,
	})
	e.breakers[operation] = cb
	return cb
}

func (e *Executor) stateChanged(operation string, from, to gobreaker.State) {
	e.logger.Warn("circuit_breaker_state_change", "operation", operation, "from", from.String(), "to", to.String())
	if e.onStateChange != nil {
		e.onStateChange(operation, from.String(), to.String())
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func recordEverything(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
