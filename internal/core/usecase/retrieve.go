package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
	"github.com/kirillkom/fund-facts-assistant/internal/core/recordstore"
)

const (
	defaultEmbedTimeout        = 3 * time.Second
	defaultCandidateMultiplier = 3
)

type RetrievalOptions struct {
	// EmbedTimeout bounds the query embedding call and the vector index query.
	EmbedTimeout time.Duration
	// CandidateMultiplier sizes the vector candidate pool as limit*multiplier.
	CandidateMultiplier int
	Observer            ports.RetrievalObserver
	// StepHook is called with the method name right before a strategy runs.
	StepHook func(domain.Method)
}

func (o RetrievalOptions) normalize() RetrievalOptions {
	out := o
	if out.EmbedTimeout <= 0 {
		out.EmbedTimeout = defaultEmbedTimeout
	}
	if out.CandidateMultiplier <= 0 {
		out.CandidateMultiplier = defaultCandidateMultiplier
	}
	if out.Observer == nil {
		out.Observer = noopObserver{}
	}
	return out
}

type corpusState struct {
	store *recordstore.Store
	// index is nil in substring-only mode.
	index ports.VectorIndex
}

// Orchestrator is the single retrieval entry point. Construct it once, call Initialize,
// then share it by reference; Retrieve is safe for unlimited concurrent callers.
type Orchestrator struct {
	source   ports.SnapshotSource
	analyzer ports.QueryAnalyzer
	embedder ports.Embedder
	vectors  ports.VectorIndexProvider
	opts     RetrievalOptions

	strategies []strategy

	initGroup singleflight.Group
	state     atomic.Pointer[corpusState]
}

// NewOrchestrator wires the retrieval core. embedder and vectors may be nil, which
// leaves the orchestrator in substring-only mode.
func NewOrchestrator(
	source ports.SnapshotSource,
	analyzer ports.QueryAnalyzer,
	embedder ports.Embedder,
	vectors ports.VectorIndexProvider,
	opts RetrievalOptions,
) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		analyzer: analyzer,
		embedder: embedder,
		vectors:  vectors,
		opts:     opts.normalize(),
	}
	o.strategies = defaultStrategies()
	return o
}

// Initialize loads the corpus once. Concurrent callers share the in-flight load.
// A failed load is reported as domain.ErrCorpusUnavailable and is not retried
// until Initialize is called again.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.state.Load() != nil {
		return nil
	}
	_, err, _ := o.initGroup.Do("corpus", func() (any, error) {
		if o.state.Load() != nil {
			return nil, nil
		}
		st, err := o.load(ctx)
		if err != nil {
			return nil, err
		}
		o.state.Store(st)
		return nil, nil
	})
	return err
}

func (o *Orchestrator) load(ctx context.Context) (*corpusState, error) {
	if o.source == nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load snapshot", errors.New("snapshot source is not configured"))
	}
	snapshot, err := o.source.LoadSnapshot(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrCorpusUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load snapshot", err)
	}
	store, err := recordstore.Load(snapshot)
	if err != nil {
		return nil, err
	}

	st := &corpusState{store: store, index: o.openVectorIndex(ctx, snapshot)}
	slog.Info("corpus_loaded",
		"version", store.Version(),
		"records", store.Len(),
		"entities", len(store.ListEntities()),
		"vector_enabled", st.index != nil,
	)
	return st, nil
}

func (o *Orchestrator) openVectorIndex(ctx context.Context, snapshot *domain.Snapshot) ports.VectorIndex {
	if o.vectors == nil || o.embedder == nil {
		slog.Info("vector_search_disabled", "reason", "no vector index provider or embedder configured")
		return nil
	}
	index, err := o.vectors.OpenVectorIndex(ctx, snapshot)
	if err != nil {
		slog.Warn("vector_index_unavailable", "error", err)
		return nil
	}
	if index == nil {
		slog.Warn("vector_index_unavailable", "error", "provider returned no index")
		return nil
	}
	return index
}

// Retrieve runs the strategy cascade and returns the first non-empty result. Only
// ErrCorpusUnavailable and ErrInvalidInput are returned as errors; everything else
// degrades to a lower strategy and finally to MethodNone.
func (o *Orchestrator) Retrieve(ctx context.Context, queryText string, limit int) (domain.RetrievalResult, error) {
	st := o.state.Load()
	if st == nil {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrCorpusUnavailable, "retrieve", errors.New("corpus is not initialized"))
	}
	if strings.TrimSpace(queryText) == "" {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query text is empty"))
	}
	if limit < 0 {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("limit must not be negative, got %d", limit))
	}

	start := time.Now()
	hints := o.analyzer.Analyze(queryText)
	call := &retrievalCall{
		state: st,
		query: queryText,
		hints: hints,
		// limit=0 still reports the method that would have matched. No step can return
		// more than the corpus holds, which also keeps the candidate pool from overflowing.
		probe: max(min(limit, st.store.Len()), 1),
		opts:  o.opts,
		embed: o.embedder,
	}

	result := domain.RetrievalResult{
		Records:      []domain.Record{},
		Scores:       []float64{},
		Method:       domain.MethodNone,
		EntityHint:   hints.EntityID,
		CategoryHint: hints.CategoryTag,
	}
	for _, s := range o.strategies {
		if !s.applies(call) {
			continue
		}
		if o.opts.StepHook != nil {
			o.opts.StepHook(s.method)
		}
		hits := s.run(ctx, call)
		if len(hits) == 0 {
			continue
		}
		result.Method = s.method
		for _, h := range trimHits(hits, limit) {
			result.Records = append(result.Records, h.record)
			result.Scores = append(result.Scores, h.score)
		}
		break
	}

	duration := time.Since(start)
	o.opts.Observer.ObserveRetrieval(result.Method, len(result.Records), duration)
	slog.Debug("retrieval_completed",
		"method", string(result.Method),
		"records", len(result.Records),
		"entity_hint", hints.EntityID,
		"category_hint", hints.CategoryTag,
		"duration_ms", float64(duration.Microseconds())/1000.0,
	)
	return result, nil
}

// ListEntities returns every entity of the loaded corpus, or nothing before Initialize.
func (o *Orchestrator) ListEntities() []domain.Entity {
	st := o.state.Load()
	if st == nil {
		return []domain.Entity{}
	}
	return st.store.ListEntities()
}

func (o *Orchestrator) GetRecord(id string) (domain.Record, bool) {
	st := o.state.Load()
	if st == nil {
		return domain.Record{}, false
	}
	return st.store.GetByID(id)
}

func (o *Orchestrator) GetRecordsForEntity(entityID string) []domain.Record {
	st := o.state.Load()
	if st == nil {
		return []domain.Record{}
	}
	return st.store.GetByEntity(entityID)
}

// VectorEnabled reports whether the corpus was loaded with a usable vector index.
func (o *Orchestrator) VectorEnabled() bool {
	st := o.state.Load()
	return st != nil && st.index != nil
}

func (o *Orchestrator) SnapshotVersion() string {
	st := o.state.Load()
	if st == nil {
		return ""
	}
	return st.store.Version()
}

// RecordCount is zero before Initialize.
func (o *Orchestrator) RecordCount() int {
	st := o.state.Load()
	if st == nil {
		return 0
	}
	return st.store.Len()
}

func (o *Orchestrator) Initialized() bool {
	return o.state.Load() != nil
}

type noopObserver struct{}

func (noopObserver) ObserveRetrieval(domain.Method, int, time.Duration) {}
func (noopObserver) ObserveEmbeddingFailure(string)                     {}
