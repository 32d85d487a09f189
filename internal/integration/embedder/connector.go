package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/integration/common"
	pkghttp "github.com/futig/zoning-qa/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Connector calls an OpenAI-compatible embeddings endpoint
type Connector struct {
	config    config.EmbeddingConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(
	cfg config.EmbeddingConfig,
	logger *zap.Logger,
) (*Connector, error) {
	conn, err := common.NewBaseConnector(cfg.HTTPClientConfig, logger)
	if err != nil {
		return nil, err
	}

	return &Connector{
		connector: conn,
		config:    cfg,
		logger:    logger,
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     *int      `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage *struct {
		TotalTokens *int `json:"total_tokens"`
	} `json:"usage"`
}

// CreateEmbeddings embeds one batch of texts
func (c *Connector) CreateEmbeddings(ctx context.Context, spec entity.EmbeddingSpec, texts []string) (
	*entity.EmbeddingBatchResult, error,
) {
	ctxzap.Debug(ctx, "creating embeddings via provider",
		zap.String("embedding_model", spec.Model),
		zap.Int("batch_size", len(texts)),
	)

	var resp embeddingsResponse
	err := c.connector.DoRequest(ctx, http.MethodPost, c.config.Endpoint, &embeddingsRequest{
		Model: spec.Model,
		Input: texts,
	}, &resp)
	if err != nil {
		if errors.Is(err, pkghttp.ErrDecodeResponse) {
			return nil, fmt.Errorf("%w: malformed embeddings response: %v", entity.ErrEmbedding, err)
		}
		return nil, err
	}

	return toBatchResult(&resp, len(texts))
}

// toBatchResult orders vectors by their index field and rejects gaps,
// duplicates and out-of-range indices
func toBatchResult(resp *embeddingsResponse, want int) (*entity.EmbeddingBatchResult, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("%w: provider returned %d embeddings for %d inputs", entity.ErrEmbedding, len(resp.Data), want)
	}

	vectors := make([][]float32, want)
	for pos, item := range resp.Data {
		idx := pos
		if item.Index != nil {
			idx = *item.Index
		}
		if idx < 0 || idx >= want {
			return nil, fmt.Errorf("%w: embedding index %d out of range", entity.ErrEmbedding, idx)
		}
		if vectors[idx] != nil {
			return nil, fmt.Errorf("%w: duplicate embedding index %d", entity.ErrEmbedding, idx)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: embedding %d is empty", entity.ErrEmbedding, idx)
		}
		vectors[idx] = item.Embedding
	}

	result := &entity.EmbeddingBatchResult{Vectors: vectors}
	if resp.Usage != nil {
		result.TotalTokens = resp.Usage.TotalTokens
	}
	return result, nil
}
