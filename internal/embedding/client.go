// Package embedding turns text into vectors through an external provider.
//
// The client batches requests, retries transient batch failures with
// exponential backoff and jitter, and memoizes vectors in an injected Cache
// keyed by embedding model and normalized text.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/futig/zoning-qa/internal/entity"
	pkgRetry "github.com/futig/zoning-qa/internal/pkg/retry"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/time/rate"
)

const DefaultBatchSize = 64

// Provider performs one embedding request for a batch of texts
type Provider interface {
	CreateEmbeddings(ctx context.Context, spec entity.EmbeddingSpec, texts []string) (*entity.EmbeddingBatchResult, error)
}

// Cache stores vectors by key. Implementations must be safe for concurrent
// use. Returned vectors are shared and must not be modified.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

type Client struct {
	provider  Provider
	cache     Cache
	batchSize int
	retry     pkgRetry.RetryConfig
	limiter   *rate.Limiter
}

type Option func(*Client)

func WithBatchSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

func WithRetry(cfg pkgRetry.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithRateLimiter throttles provider calls, one token per batch
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func NewClient(provider Provider, cache Cache, opts ...Option) *Client {
	c := &Client{
		provider:  provider,
		cache:     cache,
		batchSize: DefaultBatchSize,
		retry:     *pkgRetry.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NopCache{}
	}
	return c
}

// Normalize collapses whitespace runs and case-folds text for cache lookups
func Normalize(text string) string {
	return cases.Fold().String(strings.Join(strings.Fields(text), " "))
}

// CacheKey scopes the normalized text by embedding model
func CacheKey(model, text string) string {
	return model + "\x00" + Normalize(text)
}

// Embed returns one vector per text, in input order. Either every vector is
// returned or an error is.
func (c *Client) Embed(ctx context.Context, spec entity.EmbeddingSpec, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var (
		missKeys  []string
		missTexts []string
		waiting   = make(map[string][]int)
	)

	for i, text := range texts {
		// blank chunks are embedded as is, only the empty string is refused
		if text == "" {
			return nil, fmt.Errorf("%w: text %d is empty", entity.ErrValidation, i)
		}

		key := CacheKey(spec.Model, text)
		if vec, ok := c.cache.Get(ctx, key); ok {
			out[i] = vec
			continue
		}

		if _, seen := waiting[key]; !seen {
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, text)
		}
		waiting[key] = append(waiting[key], i)
	}

	ctxzap.Debug(ctx, "embedding texts",
		zap.Int("texts", len(texts)),
		zap.Int("cache_misses", len(missTexts)),
		zap.String("embedding_model", spec.Model),
	)

	for start := 0; start < len(missTexts); start += c.batchSize {
		end := min(start+c.batchSize, len(missTexts))

		vectors, err := c.embedBatch(ctx, spec, missTexts[start:end])
		if err != nil {
			return nil, err
		}

		for j, vec := range vectors {
			key := missKeys[start+j]
			c.cache.Set(ctx, key, vec)
			for _, idx := range waiting[key] {
				out[idx] = vec
			}
		}
	}

	if err := checkDimensions(out, spec.Dimensions); err != nil {
		return nil, err
	}

	return out, nil
}

// EmbedOne embeds a single text
func (c *Client) EmbedOne(ctx context.Context, spec entity.EmbeddingSpec, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, spec, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedBatch(ctx context.Context, spec entity.EmbeddingSpec, batch []string) ([][]float32, error) {
	attempt := 0

	result, err := retry.DoWithData(func() (*entity.EmbeddingBatchResult, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return c.provider.CreateEmbeddings(ctx, spec, batch)
	}, append(c.retry.ToRetryOptions(ctx),
		retry.OnRetry(func(n uint, err error) {
			ctxzap.Warn(ctx, "embedding batch failed, retrying",
				zap.Uint("attempt", n+1),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		}),
	)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: embedding batch: %v", entity.ErrTimeout, ctxErr)
		}
		return nil, fmt.Errorf("%w: batch of %d failed after %d attempt(s): %w", entity.ErrEmbedding, len(batch), attempt, err)
	}

	if result == nil || len(result.Vectors) != len(batch) {
		got := 0
		if result != nil {
			got = len(result.Vectors)
		}
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", entity.ErrEmbedding, got, len(batch))
	}

	if err := checkDimensions(result.Vectors, spec.Dimensions); err != nil {
		return nil, err
	}

	return result.Vectors, nil
}

func checkDimensions(vectors [][]float32, want int) error {
	if len(vectors) == 0 {
		return nil
	}
	if want == 0 {
		want = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", entity.ErrEmbedding, i)
		}
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", entity.ErrEmbedding, i, len(v), want)
		}
	}
	return nil
}
