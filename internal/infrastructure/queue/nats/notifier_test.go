package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

func TestEventEncodingKeepsAllFields(t *testing.T) {
	builtAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	raw, err := encodeEvent(domain.CorpusRebuilt{
		Version:    "v9",
		Records:    42,
		Embeddings: 42,
		Dimensions: 768,
		Sinks:      []string{"file", "qdrant"},
		BuiltAt:    builtAt,
	})
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	event, err := decodeEvent(raw)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if event.Version != "v9" || event.Dimensions != 768 || len(event.Sinks) != 2 || !event.BuiltAt.Equal(builtAt) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestEventValidation(t *testing.T) {
	if _, err := encodeEvent(domain.CorpusRebuilt{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty version, got %v", err)
	}
	if _, err := decodeEvent([]byte(`{"records":3}`)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing version, got %v", err)
	}
	if _, err := decodeEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClassifyPublishError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		counted   bool
	}{
		{name: "no servers", err: nats.ErrNoServers, retryable: true, counted: true},
		{name: "flush timeout", err: fmt.Errorf("flush: %w", nats.ErrTimeout), retryable: true, counted: true},
		{name: "reconnecting", err: nats.ErrConnectionReconnecting, retryable: true, counted: true},
		{name: "oversized event", err: fmt.Errorf("nats publish: %w", nats.ErrMaxPayload)},
		{name: "bad subject", err: nats.ErrBadSubject},
		{name: "invalid event", err: domain.WrapError(domain.ErrInvalidInput, "encode", errors.New("version is empty"))},
		{name: "cancelled", err: context.Canceled},
		{name: "unknown", err: errors.New("permissions violation"), counted: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := classifyPublishError(tc.err)
			if c.Retryable != tc.retryable || c.RecordFailure != tc.counted {
				t.Fatalf("classification = %+v, want retryable=%v counted=%v", c, tc.retryable, tc.counted)
			}
		})
	}
}

func TestPublishErrorNamesVersion(t *testing.T) {
	err := publishError("v9", nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrTimeout) {
		t.Fatalf("expected temporary broker error, got %v", err)
	}
	if !strings.Contains(err.Error(), "corpus_rebuilt v9") {
		t.Fatalf("expected version in error, got %v", err)
	}
	if err := publishError("v9", nats.ErrMaxPayload); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("oversized event must not be temporary, got %v", err)
	}
}
