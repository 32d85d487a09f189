package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/integration/common"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

const titanV2Prefix = "amazon.titan-embed-text-v2"

// BedrockConnector embeds texts with Amazon Titan text embedding models.
// Titan accepts one input per invocation.
type BedrockConnector struct {
	client common.InvokeModelAPI
	logger *zap.Logger
}

func NewBedrockConnector(client common.InvokeModelAPI, logger *zap.Logger) *BedrockConnector {
	return &BedrockConnector{
		client: client,
		logger: logger,
	}
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (c *BedrockConnector) CreateEmbeddings(ctx context.Context, spec entity.EmbeddingSpec, texts []string) (
	*entity.EmbeddingBatchResult, error,
) {
	ctxzap.Debug(ctx, "creating embeddings via bedrock",
		zap.String("embedding_model", spec.Model),
		zap.Int("batch_size", len(texts)),
	)

	vectors := make([][]float32, 0, len(texts))
	tokens := 0

	for i, text := range texts {
		req := titanRequest{InputText: text}
		if strings.HasPrefix(spec.Model, titanV2Prefix) {
			req.Dimensions = spec.Dimensions
		}

		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal titan request: %w", err)
		}

		out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(spec.Model),
			Body:        body,
			Accept:      aws.String("application/json"),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return nil, common.ClassifyBedrockError(err)
		}

		var resp titanResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return nil, fmt.Errorf("%w: malformed titan response for input %d: %v", entity.ErrEmbedding, i, err)
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("%w: titan returned an empty embedding for input %d", entity.ErrEmbedding, i)
		}

		vectors = append(vectors, resp.Embedding)
		tokens += resp.InputTextTokenCount
	}

	return &entity.EmbeddingBatchResult{Vectors: vectors, TotalTokens: &tokens}, nil
}
