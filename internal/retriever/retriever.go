// Package retriever ranks stored chunks against a query vector.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// CandidateSource is the read side of the chunk store
type CandidateSource interface {
	Candidates(ctx context.Context, municipalityID, phase string) ([]entity.DocumentChunk, error)
}

type Retriever struct {
	store CandidateSource
}

func New(store CandidateSource) *Retriever {
	return &Retriever{store: store}
}

// Retrieve scores every chunk of the municipality and phase, drops those
// below threshold and keeps the topK best
func (r *Retriever) Retrieve(
	ctx context.Context,
	municipalityID, phase string,
	query []float32,
	topK int,
	threshold float64,
) (*entity.RetrievalResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", entity.ErrInvalidParameter, topK)
	}

	candidates, err := r.store.Candidates(ctx, municipalityID, phase)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: fetch candidates: %v", entity.ErrTimeout, ctxErr)
		}
		return nil, fmt.Errorf("%w: fetch candidates: %v", entity.ErrRetrieval, err)
	}

	result := Rank(candidates, query, topK, threshold)

	ctxzap.Info(ctx, "retrieval completed",
		zap.Bool("hit", len(result.Sources) > 0),
		zap.Int("candidates", result.Candidates),
		zap.Int("matched", result.Matched),
		zap.Int("returned", len(result.Sources)),
	)

	return result, nil
}

// Rank is the pure ranking step. Sources are ordered by similarity
// descending, then chunk index, then document title.
func Rank(candidates []entity.DocumentChunk, query []float32, topK int, threshold float64) *entity.RetrievalResult {
	scored := make([]entity.RetrievedSource, 0, len(candidates))
	for _, c := range candidates {
		sim := Cosine(query, c.Embedding)
		if sim < threshold {
			continue
		}
		scored = append(scored, entity.RetrievedSource{
			DocumentTitle: c.DocumentTitle,
			ChunkIndex:    c.ChunkIndex,
			ChunkText:     c.ChunkText,
			Similarity:    sim,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.DocumentTitle < b.DocumentTitle
	})

	matched := len(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}

	return &entity.RetrievalResult{
		Sources:    scored,
		Candidates: len(candidates),
		Matched:    matched,
	}
}

// Cosine returns the cosine similarity clamped to [0,1]. Mismatched lengths
// and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
