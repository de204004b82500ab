package ports

import (
	"context"
	"time"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

// SnapshotSource loads one wholesale corpus build.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Embedder builds vectors for record texts and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex answers nearest-neighbour queries over record embeddings.
// Hits are ordered by descending score, at most k of them.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error)
}

// VectorIndexProvider opens the vector index for a loaded snapshot.
// An error means vector search is unavailable, not that the corpus is.
type VectorIndexProvider interface {
	OpenVectorIndex(ctx context.Context, snapshot *domain.Snapshot) (VectorIndex, error)
}

// EmbeddingSink receives the complete embedding set of a build and replaces what it held.
type EmbeddingSink interface {
	Name() string
	ReplaceEmbeddings(ctx context.Context, version string, embeddings []domain.Embedding) error
}

// AnswerGenerator turns retrieved records into the user-facing answer text.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, records []domain.Record) (string, error)
}

// BuildNotifier announces finished corpus builds.
type BuildNotifier interface {
	PublishCorpusRebuilt(ctx context.Context, event domain.CorpusRebuilt) error
}

// RetrievalObserver receives per-call retrieval telemetry.
type RetrievalObserver interface {
	ObserveRetrieval(method domain.Method, records int, duration time.Duration)
	ObserveEmbeddingFailure(kind string)
}

// QueryAnalyzer extracts advisory hints from free text. It must be pure.
type QueryAnalyzer interface {
	Analyze(text string) domain.Hints
}

// SnapshotWriter stores a complete corpus build, replacing the previous one.
type SnapshotWriter interface {
	ReplaceSnapshot(ctx context.Context, snapshot *domain.Snapshot) error
}
