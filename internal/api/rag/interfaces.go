package rag

import (
	"context"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/pkg/formatter"
)

type RAGUsecase interface {
	IngestDocument(ctx context.Context, req *entity.IngestDocumentRequest) (*entity.IngestResult, error)
	ListDocuments(ctx context.Context, municipalityID, phase string) ([]*entity.DocumentSummary, error)
	AskQuestion(ctx context.Context, municipalityID, question string, opts entity.AskOptions) (*entity.AnswerResponse, error)
}

type FormatterFactory interface {
	Create(format entity.ResultFormat) (formatter.Formatter, error)
}
