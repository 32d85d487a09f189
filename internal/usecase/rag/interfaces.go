package rag

import (
	"context"

	"github.com/futig/zoning-qa/internal/entity"
)

type PhaseManager interface {
	GetConfig(name string) (entity.RAGConfig, error)
	Active() string
	Phases() []string
	Activate(ctx context.Context, name string) error
	Publish(ctx context.Context, cfg entity.RAGConfig) error
	Retire(ctx context.Context, name string) error
	// Refresh reloads phases published by other instances
	Refresh(ctx context.Context) error
}

type Embedder interface {
	Embed(ctx context.Context, spec entity.EmbeddingSpec, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, spec entity.EmbeddingSpec, text string) ([]float32, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, municipalityID, phase string, query []float32, topK int, threshold float64) (*entity.RetrievalResult, error)
}

type Synthesizer interface {
	Answer(ctx context.Context, question string, sources []entity.RetrievedSource, cfg entity.RAGConfig) (*entity.AnswerResponse, error)
}
