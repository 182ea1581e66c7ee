package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrSampleNotFound   = fmt.Errorf("sample %w", ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("template %w", ErrNotFound)
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrContentRead      = errors.New("content read failure")
	ErrToolUnavailable  = errors.New("external tool unavailable")
	ErrToolFailure      = errors.New("external tool failure")
	ErrComplianceConfig = errors.New("compliance configuration error")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
