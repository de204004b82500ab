package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

// AnswerUseCase turns a retrieval result into a generated answer citing one source.
type AnswerUseCase struct {
	retriever ports.Retriever
	generator ports.AnswerGenerator
}

func NewAnswerUseCase(retriever ports.Retriever, generator ports.AnswerGenerator) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string, limit int) (*domain.Answer, error) {
	result, err := uc.retriever.Retrieve(ctx, question, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if len(result.Records) == 0 {
		return &domain.Answer{
			Text:      domain.NoContextAnswer,
			Method:    result.Method,
			NoContext: true,
			Sources:   []domain.Record{},
		}, nil
	}

	text, err := uc.generator.GenerateAnswer(ctx, question, result.Records)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:      text,
		SourceRef: result.Records[0].SourceRef,
		Method:    result.Method,
		Sources:   result.Records,
	}, nil
}
