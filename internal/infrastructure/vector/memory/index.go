package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

// Index is an exact cosine index over a fixed embedding set. It is immutable after Build.
type Index struct {
	dims    int
	entries []entry
}

type entry struct {
	hit    domain.VectorHit
	vector []float32
	norm   float64
}

// Build copies the vectors and precomputes their norms.
func Build(embeddings []domain.Embedding) (*Index, error) {
	if len(embeddings) == 0 {
		return nil, errors.New("no embeddings to index")
	}
	dims := len(embeddings[0].Vector)
	if dims == 0 {
		return nil, fmt.Errorf("embedding %s has no dimensions", embeddings[0].RecordID)
	}

	idx := &Index{dims: dims, entries: make([]entry, 0, len(embeddings))}
	seen := make(map[string]struct{}, len(embeddings))
	for _, emb := range embeddings {
		if len(emb.Vector) != dims {
			return nil, fmt.Errorf("embedding %s has %d dimensions, expected %d", emb.RecordID, len(emb.Vector), dims)
		}
		if _, dup := seen[emb.RecordID]; dup {
			return nil, fmt.Errorf("duplicate embedding for record %s", emb.RecordID)
		}
		seen[emb.RecordID] = struct{}{}

		norm := l2(emb.Vector)
		if norm == 0 {
			return nil, fmt.Errorf("embedding %s is a zero vector", emb.RecordID)
		}
		vector := make([]float32, dims)
		copy(vector, emb.Vector)
		idx.entries = append(idx.entries, entry{
			hit: domain.VectorHit{
				RecordID:    emb.RecordID,
				EntityID:    emb.EntityID,
				CategoryTag: emb.CategoryTag,
			},
			vector: vector,
			norm:   norm,
		})
	}
	return idx, nil
}

func (i *Index) Dimensions() int { return i.dims }
func (i *Index) Len() int        { return len(i.entries) }

// Query returns up to k hits by descending similarity. Scores are cosine similarity
// mapped to [0,1]. Ties keep embedding order.
func (i *Index) Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != i.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d", len(vector), i.dims)
	}
	if k <= 0 {
		return []domain.VectorHit{}, nil
	}
	qnorm := l2(vector)
	if qnorm == 0 {
		return nil, errors.New("query vector is a zero vector")
	}

	hits := make([]domain.VectorHit, 0, len(i.entries))
	for _, e := range i.entries {
		var dot float64
		for d, v := range e.vector {
			dot += float64(v) * float64(vector[d])
		}
		cos := dot / (e.norm * qnorm)
		hit := e.hit
		hit.Score = clamp01((cos + 1) / 2)
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Provider builds an in-process index from the embeddings carried by the snapshot.
type Provider struct{}

func NewProvider() Provider { return Provider{} }

func (Provider) OpenVectorIndex(_ context.Context, snapshot *domain.Snapshot) (ports.VectorIndex, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is nil")
	}
	idx, err := Build(snapshot.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("build memory index: %w", err)
	}
	return idx, nil
}
