package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

func TestRetrieveMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query text is empty")), want: http.StatusBadRequest},
		{name: "corpus unavailable", err: domain.WrapError(domain.ErrCorpusUnavailable, "retrieve", errors.New("not initialized")), want: http.StatusServiceUnavailable},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "retrieve", errors.New("busy")), want: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			corpus := newTestCorpus()
			corpus.err = tc.err
			handler := newTestHandler(config.Config{RetrievalDefaultLimit: 3}, corpus, &telemetryFake{})

			res := postJSON(t, handler, "/v1/retrieve", map[string]any{"query": "fees"})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" || body["request_id"] == "" {
				t.Fatalf("expected error and request_id, got %v", body)
			}
		})
	}
}

func TestGetRecordReturns404ForUnknownID(t *testing.T) {
	handler := newTestHandler(config.Config{}, newTestCorpus(), &telemetryFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/records/missing__fees", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestWrongMethodIsRejected(t *testing.T) {
	handler := newTestHandler(config.Config{}, newTestCorpus(), &telemetryFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
