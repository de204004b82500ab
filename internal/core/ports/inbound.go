package ports

import (
	"context"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

// Retriever is the inbound contract of the retrieval core.
type Retriever interface {
	Retrieve(ctx context.Context, queryText string, limit int) (domain.RetrievalResult, error)
}

// RecordReader exposes read-only pass-throughs to the record store.
// Unknown ids are reported as empty results, not errors.
type RecordReader interface {
	ListEntities() []domain.Entity
	GetRecord(id string) (domain.Record, bool)
	GetRecordsForEntity(entityID string) []domain.Record
}

// CorpusService is the full inbound surface used by transport adapters.
type CorpusService interface {
	Retriever
	RecordReader
	VectorEnabled() bool
	SnapshotVersion() string
}

// AnswerService answers a question with exactly one cited source.
type AnswerService interface {
	Answer(ctx context.Context, question string, limit int) (*domain.Answer, error)
}
