package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/futig/zoning-qa/internal/chunker"
	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IngestDocument chunks, embeds and atomically replaces one document under
// a phase. On any failure the previously indexed version stays intact.
func (uc *RAGUsecase) IngestDocument(ctx context.Context, req *entity.IngestDocumentRequest) (*entity.IngestResult, error) {
	if err := uc.validator.ValidateIngest(req); err != nil {
		return nil, err
	}

	cfg, err := uc.phases.GetConfig(req.Phase)
	if err != nil {
		return nil, err
	}

	key := entity.DocumentKey{
		MunicipalityID: req.MunicipalityID,
		DocumentTitle:  strings.TrimSpace(req.DocumentTitle),
		Phase:          cfg.Phase,
	}
	runID := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.IngestTimeout)
	defer cancel()

	ctx = logger.AddFields(ctx,
		zap.String("run_id", runID),
		zap.String("municipality_id", key.MunicipalityID),
		zap.String("document_title", key.DocumentTitle),
		zap.String("phase", key.Phase),
	)

	pieces, err := chunker.Split(req.RawText, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, &entity.IngestionError{Key: key, Stage: entity.StageChunk, Err: err}
	}

	// every chunk keeps its position, blank ones included, so the stored
	// chunks always rebuild the document
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	vectors, err := uc.embedder.Embed(ctx, cfg.Embedding, texts)
	if err != nil {
		return nil, &entity.IngestionError{Key: key, Stage: entity.StageEmbed, Err: deadline(ctx, err)}
	}

	chunks := make([]entity.DocumentChunk, len(texts))
	for i, text := range texts {
		chunks[i] = entity.DocumentChunk{
			MunicipalityID: key.MunicipalityID,
			DocumentTitle:  key.DocumentTitle,
			ChunkIndex:     i,
			ChunkText:      text,
			Embedding:      vectors[i],
			Phase:          key.Phase,
		}
	}

	if err := uc.store(ctx, cfg, key, chunks); err != nil {
		return nil, &entity.IngestionError{Key: key, Stage: entity.StageStore, Err: deadline(ctx, err)}
	}

	ctxzap.Info(ctx, "document ingested",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("chunk_overlap", cfg.ChunkOverlap),
		zap.Duration("duration", time.Since(start)),
	)

	return &entity.IngestResult{
		RunID:         runID,
		ChunksCreated: len(chunks),
		Phase:         cfg.Phase,
	}, nil
}

// IngestDocuments ingests independently through a bounded worker pool.
// One failing document does not stop the others.
func (uc *RAGUsecase) IngestDocuments(ctx context.Context, reqs []*entity.IngestDocumentRequest) []entity.IngestOutcome {
	outcomes := make([]entity.IngestOutcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(uc.cfg.IngestWorkers)

	for i, req := range reqs {
		outcomes[i].DocumentTitle = req.DocumentTitle
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = fmt.Errorf("%w: %v", entity.ErrTimeout, err)
				return nil
			}
			outcomes[i].Result, outcomes[i].Err = uc.IngestDocument(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	ctxzap.Info(ctx, "batch ingestion finished",
		zap.Int("documents", len(reqs)),
		zap.Int("failed", failed),
	)

	return outcomes
}

// ListDocuments lists indexed documents of a municipality. An empty phase
// lists every phase.
func (uc *RAGUsecase) ListDocuments(ctx context.Context, municipalityID, phase string) ([]*entity.DocumentSummary, error) {
	if err := uc.validator.ValidateMunicipalityID(municipalityID); err != nil {
		return nil, err
	}
	if phase != "" {
		if _, err := uc.phases.GetConfig(phase); err != nil {
			return nil, err
		}
	}

	docs, err := uc.chunks.ListDocuments(ctx, municipalityID, phase)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", entity.ErrRetrieval, err)
	}
	return docs, nil
}

// store writes the chunks only while the phase still holds the config they
// were built with
func (uc *RAGUsecase) store(ctx context.Context, cfg entity.RAGConfig, key entity.DocumentKey, chunks []entity.DocumentChunk) error {
	uc.phaseMu.RLock()
	defer uc.phaseMu.RUnlock()

	current, err := uc.phases.GetConfig(cfg.Phase)
	if err != nil {
		return err
	}
	if !current.Equal(cfg) {
		return fmt.Errorf("%w: %q was republished during ingestion", entity.ErrPhaseNotFound, cfg.Phase)
	}
	return uc.chunks.ReplaceChunks(ctx, key, chunks)
}
