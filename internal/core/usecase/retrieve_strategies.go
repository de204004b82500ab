package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

type scoredRecord struct {
	record domain.Record
	score  float64
}

// strategy is one cascade step. applies gates the step on the hints and the available
// subsystems; run returns an empty slice when the step found nothing.
type strategy struct {
	method  domain.Method
	applies func(c *retrievalCall) bool
	run     func(ctx context.Context, c *retrievalCall) []scoredRecord
}

// defaultStrategies is the cascade in strict precedence order.
func defaultStrategies() []strategy {
	return []strategy{
		{method: domain.MethodExact, applies: hasBothHints, run: exactLookup},
		{method: domain.MethodVectorFiltered, applies: vectorWithAnyHint, run: vectorFiltered},
		{method: domain.MethodCategoryFiltered, applies: vectorWithBothHints, run: vectorCategoryOnly},
		{method: domain.MethodEntityFiltered, applies: vectorWithBothHints, run: vectorEntityOnly},
		{method: domain.MethodVector, applies: vectorReady, run: vectorUnfiltered},
		{method: domain.MethodSubstringExact, applies: hasBothHints, run: exactLookup},
		{method: domain.MethodSubstringEntity, applies: hasEntityHint, run: substringEntity},
		{method: domain.MethodSubstringCategory, applies: hasCategoryHint, run: substringCategory},
		{method: domain.MethodSubstringScan, applies: always, run: substringScan},
	}
}

// retrievalCall carries per-call state. The query embedding and the candidate pool are
// computed at most once and shared by every vector step of the call.
type retrievalCall struct {
	state *corpusState
	query string
	hints domain.Hints
	probe int
	opts  RetrievalOptions
	embed ports.Embedder

	poolLoaded bool
	pool       []domain.VectorHit
}

func always(*retrievalCall) bool                { return true }
func hasBothHints(c *retrievalCall) bool        { return c.hints.Complete() }
func hasEntityHint(c *retrievalCall) bool       { return c.hints.HasEntity() }
func hasCategoryHint(c *retrievalCall) bool     { return c.hints.HasCategory() }
func vectorReady(c *retrievalCall) bool         { return c.state.index != nil && c.embed != nil }
func vectorWithBothHints(c *retrievalCall) bool { return vectorReady(c) && c.hints.Complete() }

func vectorWithAnyHint(c *retrievalCall) bool {
	return vectorReady(c) && (c.hints.HasEntity() || c.hints.HasCategory())
}

func exactLookup(_ context.Context, c *retrievalCall) []scoredRecord {
	rec, ok := c.state.store.GetByID(domain.CanonicalID(c.hints.EntityID, c.hints.CategoryTag))
	if !ok {
		return nil
	}
	return []scoredRecord{{record: rec, score: domain.ExactMatchScore}}
}

func vectorFiltered(ctx context.Context, c *retrievalCall) []scoredRecord {
	return c.filterPool(ctx, c.hints.EntityID, c.hints.CategoryTag)
}

func vectorCategoryOnly(ctx context.Context, c *retrievalCall) []scoredRecord {
	return c.filterPool(ctx, "", c.hints.CategoryTag)
}

func vectorEntityOnly(ctx context.Context, c *retrievalCall) []scoredRecord {
	return c.filterPool(ctx, c.hints.EntityID, "")
}

func vectorUnfiltered(ctx context.Context, c *retrievalCall) []scoredRecord {
	return c.filterPool(ctx, "", "")
}

func substringEntity(_ context.Context, c *retrievalCall) []scoredRecord {
	records := c.state.store.GetByEntity(c.hints.EntityID)
	if c.hints.HasCategory() {
		narrowed := make([]domain.Record, 0, len(records))
		for _, rec := range records {
			if rec.CategoryTag == c.hints.CategoryTag {
				narrowed = append(narrowed, rec)
			}
		}
		if len(narrowed) > 0 {
			records = narrowed
		}
	}
	return placeholderScored(records, c.probe)
}

func substringCategory(_ context.Context, c *retrievalCall) []scoredRecord {
	return placeholderScored(c.state.store.GetByCategory(c.hints.CategoryTag), c.probe)
}

// substringScan matches any of the first two whitespace-delimited query tokens against
// record bodies, case-insensitively, in corpus order.
func substringScan(_ context.Context, c *retrievalCall) []scoredRecord {
	tokens := strings.Fields(strings.ToLower(c.query))
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	if len(tokens) == 0 {
		return nil
	}

	var out []domain.Record
	for _, rec := range c.state.store.All() {
		body := strings.ToLower(rec.BodyText)
		for _, token := range tokens {
			if strings.Contains(body, token) {
				out = append(out, rec)
				break
			}
		}
		if len(out) >= c.probe {
			break
		}
	}
	return placeholderScored(out, c.probe)
}

// filterPool keeps pool candidates that match every non-empty filter, in similarity order.
func (c *retrievalCall) filterPool(ctx context.Context, entityID, categoryTag string) []scoredRecord {
	pool := c.candidates(ctx)
	out := make([]scoredRecord, 0, min(len(pool), c.probe))
	for _, hit := range pool {
		if entityID != "" && hit.EntityID != entityID {
			continue
		}
		if categoryTag != "" && hit.CategoryTag != categoryTag {
			continue
		}
		rec, ok := c.state.store.GetByID(hit.RecordID)
		if !ok {
			continue
		}
		out = append(out, scoredRecord{record: rec, score: hit.Score})
		if len(out) == c.probe {
			break
		}
	}
	return out
}

func (c *retrievalCall) candidates(ctx context.Context) []domain.VectorHit {
	if c.poolLoaded {
		return c.pool
	}
	c.poolLoaded = true

	vector, ok := c.embedQuery(ctx)
	if !ok {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.opts.EmbedTimeout)
	defer cancel()
	hits, err := c.state.index.Query(queryCtx, vector, c.probe*c.opts.CandidateMultiplier)
	if err != nil {
		c.opts.Observer.ObserveEmbeddingFailure("vector_query")
		slog.Warn("vector_query_failed", "error", err)
		return nil
	}
	c.pool = hits
	return c.pool
}

func (c *retrievalCall) embedQuery(ctx context.Context) ([]float32, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, c.opts.EmbedTimeout)
	defer cancel()

	vector, err := c.embed.EmbedQuery(embedCtx, c.query)
	if err == nil && len(vector) == 0 {
		err = domain.WrapError(domain.ErrEmbeddingProvider, "embed query", errors.New("empty query embedding"))
	}
	if err != nil {
		err = embeddingFailure(err)
		label := "provider"
		if domain.IsKind(err, domain.ErrEmbeddingTimeout) {
			label = "timeout"
		}
		c.opts.Observer.ObserveEmbeddingFailure(label)
		slog.Warn("embedding_failed", "kind", label, "error", err)
		return nil, false
	}
	return vector, true
}

// embeddingFailure keeps the kind an embedder already assigned. Bare errors get one:
// the call deadline means timeout, anything else is a provider failure.
func embeddingFailure(err error) error {
	switch {
	case domain.IsKind(err, domain.ErrEmbeddingTimeout), domain.IsKind(err, domain.ErrEmbeddingProvider):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrEmbeddingTimeout, "embed query", err)
	default:
		return domain.WrapError(domain.ErrEmbeddingProvider, "embed query", err)
	}
}

func placeholderScored(records []domain.Record, limit int) []scoredRecord {
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]scoredRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, scoredRecord{record: rec, score: domain.SubstringPlaceholderScore})
	}
	return out
}

func trimHits(hits []scoredRecord, limit int) []scoredRecord {
	if limit < 0 || len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}
