package embedcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

// Wrap caches query embeddings. Batch Embed calls from the index build pass through.
// A nil embedder or a non-positive size or ttl returns next unchanged.
func Wrap(next ports.Embedder, size int, ttl time.Duration) ports.Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &lruEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next     ports.Embedder
	cache    *expirable.LRU[string, []float32]
	inflight singleflight.Group
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return l.next.Embed(ctx, texts)
}

func (l *lruEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := l.cache.Get(text); ok {
		slog.Debug("embedding_cache_hit")
		return cloneEmbedding(cached), nil
	}

	// Concurrent identical queries share one provider call. A caller whose context ends
	// first stops waiting; the call itself runs under the first caller's context.
	ch := l.inflight.DoChan(text, func() (any, error) {
		res, err := l.next.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		l.cache.Add(text, cloneEmbedding(res))
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return cloneEmbedding(r.Val.([]float32)), nil
	}
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
