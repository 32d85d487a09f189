package builder

import (
	"context"
	"fmt"

	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/embedding"
	"github.com/futig/zoning-qa/internal/integration/common"
	"github.com/futig/zoning-qa/internal/integration/embedder"
	"github.com/futig/zoning-qa/internal/integration/llm"
	"github.com/futig/zoning-qa/internal/synthesizer"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// providers picks the embedding and generation backends. A Bedrock client
// is created once and shared when either side uses it.
func providers(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embedding.Provider, synthesizer.Generator, error) {
	if cfg.EnableMocks {
		logger.Info("Using mock connectors for external services")
		return embedder.NewMockConnector(logger), llm.NewMockConnector(logger), nil
	}

	var bedrock common.InvokeModelAPI
	if cfg.Embedding.Provider == config.ProviderBedrock || cfg.LLM.Provider == config.ProviderBedrock {
		client, err := common.NewBedrockClient(ctx, cfg.Bedrock.Region)
		if err != nil {
			return nil, nil, err
		}
		bedrock = client
	}

	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case config.ProviderBedrock:
		provider = embedder.NewBedrockConnector(bedrock, logger)
	default:
		conn, err := embedder.NewConnector(cfg.Embedding, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("embedding connector: %w", err)
		}
		provider = conn
	}

	var generator synthesizer.Generator
	switch cfg.LLM.Provider {
	case config.ProviderBedrock:
		generator = llm.NewBedrockConnector(bedrock, logger)
	default:
		conn, err := llm.NewConnector(cfg.LLM, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("llm connector: %w", err)
		}
		generator = conn
	}

	logger.Info("Using real connectors for external services",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("llm_provider", cfg.LLM.Provider),
	)
	return provider, generator, nil
}

// setupCache returns the embedding cache and, for the redis backend, the
// client the app must close
func setupCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (embedding.Cache, *redis.Client, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return embedding.NopCache{}, nil, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("embedding cache on redis", zap.String("addr", cfg.RedisAddr))
		return embedding.NewRedisCache(client, cfg.RedisPrefix, cfg.TTL), client, nil
	default:
		logger.Info("embedding cache in memory", zap.Int("max_items", cfg.MaxItems))
		return embedding.NewMemoryCache(cfg.TTL, cfg.CleanupInterval, cfg.MaxItems), nil, nil
	}
}

// newLimiter returns nil when throttling is disabled
func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.PerSecond), max(cfg.Burst, 1))
}
