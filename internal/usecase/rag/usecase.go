package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/pkg/validator"
	"github.com/futig/zoning-qa/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultQueryTimeout  = 30 * time.Second
	defaultIngestTimeout = 5 * time.Minute
	defaultIngestWorkers = 4
)

// Config bounds request work. IngestTimeout applies per document.
type Config struct {
	QueryTimeout  time.Duration
	IngestTimeout time.Duration
	IngestWorkers int
}

// RAGUsecase wires ingestion and question answering
type RAGUsecase struct {
	chunks      repository.ChunkRepository
	phases      PhaseManager
	embedder    Embedder
	retriever   Retriever
	synthesizer Synthesizer
	validator   *validator.Validator
	cfg         Config
	logger      *zap.Logger

	// chunk writes hold it shared, phase retirement exclusive
	phaseMu sync.RWMutex
}

// NewUsecase creates a new RAG use case
func NewUsecase(
	chunks repository.ChunkRepository,
	phases PhaseManager,
	embedder Embedder,
	retriever Retriever,
	synthesizer Synthesizer,
	validator *validator.Validator,
	cfg Config,
	logger *zap.Logger,
) *RAGUsecase {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = defaultIngestTimeout
	}
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = defaultIngestWorkers
	}

	return &RAGUsecase{
		chunks:      chunks,
		phases:      phases,
		embedder:    embedder,
		retriever:   retriever,
		synthesizer: synthesizer,
		validator:   validator,
		cfg:         cfg,
		logger:      logger,
	}
}

// deadline reports a done context as ErrTimeout
func deadline(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, entity.ErrTimeout) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", entity.ErrTimeout, err)
	}
	return err
}
