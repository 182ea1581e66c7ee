package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const maxResponseBytes = 4 << 20

func (c *Client) post(ctx context.Context, payload domain.InferenceRequest) (*domain.InferenceOutput, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("X-Compliance-Provider", strings.TrimSpace(c.cfg.Provider))
	if region := strings.TrimSpace(c.cfg.Region); region != "" {
		req.Header.Set("X-Compliance-Region", region)
	}
	req.Header.Set("X-Content-Hash", payload.Metadata.ContentHash)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, newStatusError(resp)
	}

	var out domain.InferenceOutput
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return &out, nil
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{Code: resp.StatusCode, Snippet: strings.TrimSpace(string(body))}
}
