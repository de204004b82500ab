package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Body)
}

// How Ollama failures are treated:
//
//	deadline                     ErrEmbeddingTimeout, not retried, not counted by the breaker
//	transport fault, 408/429/5xx ErrEmbeddingProvider + ErrTemporary, retried
//	other 4xx (unknown model)    ErrEmbeddingProvider, not retried
//	malformed vectors            ErrEmbeddingProvider, not retried, counted by the breaker
func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case isTransient(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

func isTransient(err error) bool {
	if resilience.IsCircuitOpen(err) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// embedFailure gives an embedding error its domain kind so callers never inspect
// transport details.
func embedFailure(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrEmbeddingProvider), domain.IsKind(err, domain.ErrEmbeddingTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrEmbeddingTimeout, operation, err)
	case isTransient(err):
		return fmt.Errorf("%s: %w: %w: %w", operation, domain.ErrEmbeddingProvider, domain.ErrTemporary, err)
	default:
		return domain.WrapError(domain.ErrEmbeddingProvider, operation, err)
	}
}

func generateFailure(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) || !isTransient(err) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, "generate", err)
}

// checkVectors rejects responses that cannot be stored next to other vectors of the corpus.
func checkVectors(vectors [][]float32, inputs int) error {
	if len(vectors) != inputs {
		return domain.WrapError(domain.ErrEmbeddingProvider, "embed",
			fmt.Errorf("got %d embeddings for %d inputs", len(vectors), inputs))
	}
	dims := len(vectors[0])
	if dims == 0 {
		return domain.WrapError(domain.ErrEmbeddingProvider, "embed", errors.New("empty embedding result"))
	}
	for i, v := range vectors {
		if len(v) != dims {
			return domain.WrapError(domain.ErrEmbeddingProvider, "embed",
				fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), dims))
		}
	}
	return nil
}
