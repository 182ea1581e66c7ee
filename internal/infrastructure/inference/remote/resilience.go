package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/resilience"
)

// StatusError is a non-2xx answer from the inference endpoint.
type StatusError struct {
	Code    int
	Snippet string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Code)
	if e.Snippet == "" {
		return fmt.Sprintf("inference endpoint answered %d %s", e.Code, text)
	}
	return fmt.Sprintf("inference endpoint answered %d %s: %s", e.Code, text, e.Snippet)
}

// Codes worth another attempt; anything else means the request itself is wrong.
var transientStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var (
	transient = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	fault     = resilience.ErrorClassification{RecordFailure: true}
	ignored   = resilience.ErrorClassification{}
)

func classifyInferenceError(err error) resilience.ErrorClassification {
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ignored
	case resilience.IsCircuitOpen(err):
		return transient
	case errors.As(err, &statusErr):
		if transientStatus[statusErr.Code] {
			return transient
		}
		return ignored
	case errors.As(err, &netErr):
		return transient
	default:
		return fault
	}
}

// asTemporary marks errors a caller may retry later as domain.ErrTemporary.
func asTemporary(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyInferenceError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operationInfer, err)
	}
	return err
}
