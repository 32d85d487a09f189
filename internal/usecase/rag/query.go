package rag

import (
	"context"
	"fmt"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/pkg/logger"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// AskQuestion answers from the municipality's chunks of one phase. Finding
// no relevant context is a normal answer, not an error.
func (uc *RAGUsecase) AskQuestion(
	ctx context.Context,
	municipalityID, question string,
	opts entity.AskOptions,
) (*entity.AnswerResponse, error) {
	if err := uc.validator.ValidateQuestion(municipalityID, question, opts); err != nil {
		return nil, err
	}

	cfg, err := uc.phases.GetConfig(opts.Phase)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.QueryTimeout)
	defer cancel()

	ctx = logger.AddFields(ctx,
		zap.String("municipality_id", municipalityID),
		zap.String("phase", cfg.Phase),
	)

	exists, err := uc.chunks.MunicipalityExists(ctx, municipalityID)
	if err != nil {
		return nil, deadline(ctx, fmt.Errorf("%w: check municipality: %v", entity.ErrRetrieval, err))
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownMunicipality, municipalityID)
	}

	topK := cfg.TopK
	if opts.TopK != nil {
		topK = *opts.TopK
	}

	queryVector, err := uc.embedder.EmbedOne(ctx, cfg.Embedding, question)
	if err != nil {
		return nil, deadline(ctx, err)
	}

	retrieved, err := uc.retriever.Retrieve(ctx, municipalityID, cfg.Phase, queryVector, topK, cfg.SimilarityThreshold)
	if err != nil {
		return nil, deadline(ctx, err)
	}

	resp, err := uc.synthesizer.Answer(ctx, question, retrieved.Sources, cfg)
	if err != nil {
		return nil, deadline(ctx, err)
	}

	if opts.Verbose {
		resp.Metadata.Debug = &entity.QueryDebug{
			SimilarityThreshold:   cfg.SimilarityThreshold,
			TopK:                  topK,
			CandidatesConsidered:  retrieved.Candidates,
			MatchedAboveThreshold: retrieved.Matched,
			EmbeddingModel:        cfg.Embedding.Model,
			Optimizations:         cfg.Optimizations,
		}
	}

	fields := []zap.Field{
		zap.Int("sources", len(resp.Sources)),
		zap.Float64("avg_similarity", resp.Metadata.AvgSimilarity),
		zap.Int64("response_time_ms", resp.Metadata.ResponseTimeMs),
		zap.Bool("generation_failed", resp.Metadata.GenerationFailed),
	}
	if resp.Metadata.TokensUsed != nil {
		fields = append(fields, zap.Int("tokens_used", *resp.Metadata.TokensUsed))
	}
	if resp.Metadata.EstimatedCostUSD != nil {
		fields = append(fields, zap.Float64("estimated_cost_usd", *resp.Metadata.EstimatedCostUSD))
	}
	ctxzap.Info(ctx, "query completed", fields...)

	return resp, nil
}
