package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

func scrape(t *testing.T, m *HTTPServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMiddlewareNormalizesPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/v1/records/fund-a__fees", "/v1/records/fund-b__risk", "/v1/entities/fund-a/records"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	if !strings.Contains(body, `ffa_http_requests_total{method="GET",path="/v1/records/{record_id}",service="api",status="404"} 2`) {
		t.Fatalf("expected normalized record path:\n%s", body)
	}
	if !strings.Contains(body, `path="/v1/entities/{entity_id}/records"`) {
		t.Fatalf("expected normalized entity path:\n%s", body)
	}
}

func TestRetrievalObserver(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveRetrieval(domain.MethodExact, 1, time.Millisecond)
	m.ObserveRetrieval(domain.MethodNone, 0, time.Millisecond)
	m.ObserveEmbeddingFailure("timeout")
	m.RecordAnswer(true)
	m.ObserveBreakerState("ollama_embed", "closed", "open")
	m.SetCorpus("v1", 12, false)

	body := scrape(t, m)
	for _, want := range []string{
		`ffa_retrieval_requests_total{method="exact",service="api"} 1`,
		`ffa_retrieval_requests_total{method="none",service="api"} 1`,
		`ffa_retrieval_embedding_failures_total{kind="timeout",service="api"} 1`,
		`ffa_answer_requests_total{outcome="no_context",service="api"} 1`,
		`ffa_resilience_breaker_open{operation="ollama_embed",service="api"} 1`,
		`ffa_corpus_records{service="api",vector_enabled="false",version="v1"} 12`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}
