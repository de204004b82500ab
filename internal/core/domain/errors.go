package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	ErrNotFound          = errors.New("not found")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrEmbeddingTimeout  = errors.New("embedding timeout")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTemporary         = errors.New("temporary failure")
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
