// Package remote calls a hosted text inference service over HTTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/resilience"
)

const operationInfer = "remote_inference"

type Config struct {
	Endpoint   string
	APIKey     string
	Provider   string
	Region     string
	Timeout    time.Duration
	RatePerSec float64
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

// New builds a client. A nil executor runs each call once without a breaker.
func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}
	if executor == nil {
		noBreaker := resilience.SingleAttempt()
		noBreaker.Breaker.Enabled = false
		executor = resilience.NewExecutor(noBreaker)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		executor:   executor,
	}
}

// Infer posts already sanitized text. It refuses to send anything when no
// provider has been declared for the endpoint.
func (c *Client) Infer(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceOutput, error) {
	if err := c.checkCompliance(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for inference rate limit: %w", err)
	}

	out, err := resilience.Do(ctx, c.executor, operationInfer, func(ctx context.Context) (*domain.InferenceOutput, error) {
		return c.post(ctx, req)
	}, classifyInferenceError)
	if err != nil {
		return nil, asTemporary(err)
	}
	return out, nil
}

func (c *Client) Describe() domain.Compliance {
	return domain.Compliance{
		Provider: strings.TrimSpace(c.cfg.Provider),
		Region:   strings.TrimSpace(c.cfg.Region),
		Endpoint: c.cfg.Endpoint,
	}
}

func (c *Client) checkCompliance() error {
	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return domain.WrapError(domain.ErrComplianceConfig, operationInfer, errors.New("no endpoint configured"))
	}
	if strings.TrimSpace(c.cfg.Provider) == "" {
		return domain.WrapError(domain.ErrComplianceConfig, operationInfer,
			fmt.Errorf("endpoint %s has no declared provider", c.cfg.Endpoint))
	}
	return nil
}
