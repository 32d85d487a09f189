// Package synthesizer turns retrieved sources into a grounded answer.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/futig/zoning-qa/internal/entity"
	pkgRetry "github.com/futig/zoning-qa/internal/pkg/retry"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	InsufficientContextAnswer = "The indexed documents do not contain enough information to answer this question."
	GenerationFailedMarker    = "[generation failed]"

	// one retry on transient failure
	generationAttempts = 2
)

// Generator produces one completion. Transport failures are errors, an
// unusable payload is a failed CompletionResult.
type Generator interface {
	Generate(ctx context.Context, req entity.LLMCompletionRequest) (entity.CompletionResult, error)
}

type Synthesizer struct {
	generator Generator
	retry     pkgRetry.RetryConfig
	limiter   *rate.Limiter
}

type Option func(*Synthesizer)

// WithRetry sets the backoff between attempts. The attempt count is fixed.
func WithRetry(cfg pkgRetry.RetryConfig) Option {
	return func(s *Synthesizer) {
		s.retry = cfg
	}
}

func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *Synthesizer) {
		s.limiter = l
	}
}

func New(generator Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator: generator,
		retry:     *pkgRetry.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Attempts = generationAttempts
	return s
}

// Answer never fails for generation problems: those are reported in the
// metadata and the sources are kept. Only a done context returns an error.
func (s *Synthesizer) Answer(
	ctx context.Context,
	question string,
	sources []entity.RetrievedSource,
	cfg entity.RAGConfig,
) (*entity.AnswerResponse, error) {
	start := time.Now()

	resp := &entity.AnswerResponse{
		Sources: sources,
		Metadata: entity.AnswerMetadata{
			Phase: cfg.Phase,
			Model: cfg.Model,
		},
	}
	if resp.Sources == nil {
		resp.Sources = []entity.RetrievedSource{}
	}

	if len(sources) == 0 {
		resp.Answer = InsufficientContextAnswer
		resp.Metadata.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	resp.Metadata.AvgSimilarity = averageSimilarity(sources)

	system, user := BuildPrompt(question, sources)
	req := entity.LLMCompletionRequest{
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		SystemPrompt: system,
		UserPrompt:   user,
	}

	result, err := s.generate(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: generation: %v", entity.ErrTimeout, ctxErr)
	}

	switch {
	case err != nil:
		// provider bodies stay in the server log
		s.fail(ctx, resp, classify(err), zap.Error(err))
	case !result.OK:
		s.fail(ctx, resp, result.ErrorKind)
	default:
		resp.Answer = result.Value.Text
		resp.Metadata.TokensUsed = totalTokens(result.Value)
		resp.Metadata.EstimatedCostUSD = estimateCost(result.Value, cfg.Pricing)
	}

	resp.Metadata.ResponseTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

func (s *Synthesizer) generate(ctx context.Context, req entity.LLMCompletionRequest) (entity.CompletionResult, error) {
	return retry.DoWithData(func() (entity.CompletionResult, error) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return entity.CompletionResult{}, err
			}
		}
		return s.generator.Generate(ctx, req)
	}, append(s.retry.ToRetryOptions(ctx),
		retry.OnRetry(func(n uint, err error) {
			ctxzap.Warn(ctx, "generation failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)...)
}

// classify reduces a transport error to its kind
func classify(err error) entity.CompletionErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.CompletionErrorTimeout
	}
	return entity.CompletionErrorProvider
}

func (s *Synthesizer) fail(ctx context.Context, resp *entity.AnswerResponse, kind entity.CompletionErrorKind, fields ...zap.Field) {
	ctxzap.Warn(ctx, "answer generation failed", append(fields,
		zap.String("kind", string(kind)),
		zap.Int("sources", len(resp.Sources)),
	)...)
	resp.Answer = GenerationFailedMarker
	resp.Metadata.GenerationFailed = true
	resp.Metadata.GenerationError = fmt.Sprintf("%v: %s", entity.ErrGeneration, kind)
}

func averageSimilarity(sources []entity.RetrievedSource) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Similarity
	}
	return sum / float64(len(sources))
}

func totalTokens(c entity.LLMCompletion) *int {
	if c.TotalTokens != nil {
		return c.TotalTokens
	}
	if c.PromptTokens != nil && c.CompletionTokens != nil {
		total := *c.PromptTokens + *c.CompletionTokens
		return &total
	}
	return nil
}

func estimateCost(c entity.LLMCompletion, pricing *entity.Pricing) *float64 {
	if pricing == nil || c.PromptTokens == nil || c.CompletionTokens == nil {
		return nil
	}
	cost := float64(*c.PromptTokens)/1000*pricing.PromptPer1K +
		float64(*c.CompletionTokens)/1000*pricing.CompletionPer1K
	return &cost
}
