package resilience

import "time"

// RetryPolicy is an exponential backoff schedule. MaxAttempts counts the
// first call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy trips once at least MinRequests calls were seen in the
// current window and FailureRatio of them failed.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// SingleAttempt keeps the breaker but never retries. Used where the caller
// already has its own fallback.
func SingleAttempt() Config {
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 1
	return cfg
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	return Config{
		Retry:   c.Retry.withDefaults(def.Retry),
		Breaker: c.Breaker.withDefaults(def.Breaker),
	}
}

func (p RetryPolicy) withDefaults(def RetryPolicy) RetryPolicy {
	p.MaxAttempts = positiveOr(p.MaxAttempts, def.MaxAttempts)
	p.InitialBackoff = positiveOr(p.InitialBackoff, def.InitialBackoff)
	p.MaxBackoff = max(positiveOr(p.MaxBackoff, def.MaxBackoff), p.InitialBackoff)
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

func (p BreakerPolicy) withDefaults(def BreakerPolicy) BreakerPolicy {
	p.MinRequests = positiveOr(p.MinRequests, def.MinRequests)
	p.HalfOpenMaxCalls = positiveOr(p.HalfOpenMaxCalls, def.HalfOpenMaxCalls)
	p.OpenTimeout = positiveOr(p.OpenTimeout, def.OpenTimeout)
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	return p
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
