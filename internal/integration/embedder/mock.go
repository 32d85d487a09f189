package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

const defaultMockDimensions = 256

// MockConnector embeds texts as hashed bags of words, so texts sharing
// words have positive cosine similarity
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{
		logger: logger,
	}
}

func (m *MockConnector) CreateEmbeddings(ctx context.Context, spec entity.EmbeddingSpec, texts []string) (
	*entity.EmbeddingBatchResult, error,
) {
	ctxzap.Debug(ctx, "[MOCK] creating embeddings", zap.Int("batch_size", len(texts)))

	dims := spec.Dimensions
	if dims == 0 {
		dims = defaultMockDimensions
	}

	vectors := make([][]float32, 0, len(texts))
	tokens := 0
	for _, text := range texts {
		words := tokenize(text)
		tokens += len(words)
		vectors = append(vectors, hashWords(words, dims))
	}

	return &entity.EmbeddingBatchResult{Vectors: vectors, TotalTokens: &tokens}, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashWords(words []string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// keep the vector non-zero so length checks still apply
		vec[0] = 1
		return vec
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
