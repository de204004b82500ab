package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

const maxRequestBodyBytes = 64 << 10

// Telemetry is the slice of the metrics registry the router reports to.
type Telemetry interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
	RecordAnswer(noContext bool)
	RecordRejection(reason string)
}

type Router struct {
	cfg     config.Config
	corpus  ports.CorpusService
	answers ports.AnswerService
	metrics Telemetry
}

func NewRouter(
	cfg config.Config,
	corpus ports.CorpusService,
	answers ports.AnswerService,
	metrics Telemetry,
) *Router {
	return &Router{
		cfg:     cfg,
		corpus:  corpus,
		answers: answers,
		metrics: metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/retrieve", rt.retrieve)
	api.HandleFunc("POST /v1/answer", rt.answer)
	api.HandleFunc("GET /v1/entities", rt.listEntities)
	api.HandleFunc("GET /v1/entities/{entity_id}/records", rt.recordsForEntity)
	api.HandleFunc("GET /v1/records/{record_id}", rt.getRecord)

	var limited http.Handler = api
	if rt.cfg.APIMaxInFlight > 0 {
		limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.recordRejection)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = max(1, int(rt.cfg.APIRateLimitRPS))
		}
		limited = rateLimitMiddleware(limited, rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst), rt.recordRejection)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	version := rt.corpus.SnapshotVersion()
	status, code := "ok", http.StatusOK
	if version == "" {
		status, code = "corpus_unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":           status,
		"vector_enabled":   rt.corpus.VectorEnabled(),
		"snapshot_version": version,
	})
}

type retrieveRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := rt.corpus.Retrieve(r.Context(), req.Query, rt.limitOrDefault(req.Limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type answerRequest struct {
	Question string `json:"question"`
	Limit    *int   `json:"limit"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	answer, err := rt.answers.Answer(r.Context(), req.Question, rt.limitOrDefault(req.Limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(answer.NoContext)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) listEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": rt.corpus.ListEntities()})
}

func (rt *Router) recordsForEntity(w http.ResponseWriter, r *http.Request) {
	entityID := strings.TrimSpace(r.PathValue("entity_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": entityID,
		"records":   rt.corpus.GetRecordsForEntity(entityID),
	})
}

func (rt *Router) getRecord(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("record_id"))
	record, ok := rt.corpus.GetRecord(id)
	if !ok {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "get record", errors.New("id="+id)))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) limitOrDefault(limit *int) int {
	if limit == nil {
		return rt.cfg.RetrievalDefaultLimit
	}
	return *limit
}

func (rt *Router) recordRejection(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(reason)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode request", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	payload := map[string]string{
		"error":      err.Error(),
		"request_id": requestIDFromContext(r.Context()),
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// retryAfterSeconds rounds a reservation delay up to whole seconds, minimum one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(1, secs)
}
