package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	chunks []entity.DocumentChunk
	err    error
	calls  int
}

func (s *stubSource) Candidates(context.Context, string, string) ([]entity.DocumentChunk, error) {
	s.calls++
	return s.chunks, s.err
}

func chunk(title string, idx int, vec ...float32) entity.DocumentChunk {
	return entity.DocumentChunk{DocumentTitle: title, ChunkIndex: idx, ChunkText: title, Embedding: vec}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite clamps", a: []float32{1, 0}, b: []float32{-1, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}

	assert.InDelta(t, 0.7071, Cosine([]float32{1, 0}, []float32{1, 1}), 1e-4)
}

func TestRank_ExactSemantics(t *testing.T) {
	query := []float32{1, 0}
	candidates := []entity.DocumentChunk{
		chunk("A", 0, 0, 1),      // 0
		chunk("A", 1, 1, 1),      // 0.707
		chunk("B", 0, 1, 0),      // 1
		chunk("B", 1, 1, 0.2),    // 0.98
		chunk("C", 0, 1, 3),      // 0.316
		chunk("C", 1, 1, 0.2),    // 0.98
		chunk("D", 0, -1, 0.001), // clamps to 0
	}

	res := Rank(candidates, query, 3, 0.5)
	assert.Equal(t, 7, res.Candidates)
	assert.Equal(t, 4, res.Matched)
	require.Len(t, res.Sources, 3)

	assert.Equal(t, "B", res.Sources[0].DocumentTitle)
	// ties on similarity: chunk index then title
	assert.Equal(t, "B", res.Sources[1].DocumentTitle)
	assert.Equal(t, 1, res.Sources[1].ChunkIndex)
	assert.Equal(t, "C", res.Sources[2].DocumentTitle)

	for i := 1; i < len(res.Sources); i++ {
		assert.GreaterOrEqual(t, res.Sources[i-1].Similarity, res.Sources[i].Similarity)
	}
}

func TestRank_ThresholdIsInclusive(t *testing.T) {
	res := Rank([]entity.DocumentChunk{chunk("A", 0, 1, 0)}, []float32{1, 0}, 5, 1)
	assert.Len(t, res.Sources, 1)

	res = Rank([]entity.DocumentChunk{chunk("A", 0, 0, 1)}, []float32{1, 0}, 5, 0)
	assert.Len(t, res.Sources, 1, "zero threshold keeps zero similarity")
}

func TestRank_TieBreakByIndexBeforeTitle(t *testing.T) {
	candidates := []entity.DocumentChunk{
		chunk("B", 0, 1, 0),
		chunk("A", 2, 1, 0),
		chunk("A", 0, 1, 0),
	}
	res := Rank(candidates, []float32{1, 0}, 3, 0)
	require.Len(t, res.Sources, 3)
	assert.Equal(t, "A", res.Sources[0].DocumentTitle)
	assert.Equal(t, 0, res.Sources[0].ChunkIndex)
	assert.Equal(t, "B", res.Sources[1].DocumentTitle)
	assert.Equal(t, 2, res.Sources[2].ChunkIndex)
}

func TestRetriever_Retrieve(t *testing.T) {
	src := &stubSource{chunks: []entity.DocumentChunk{chunk("A", 0, 1, 0), chunk("A", 1, 0, 1)}}
	r := New(src)

	res, err := r.Retrieve(context.Background(), "401", "p1", []float32{1, 0}, 5, 0.2)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Matched)
}

func TestRetriever_Retrieve_Empty(t *testing.T) {
	res, err := New(&stubSource{}).Retrieve(context.Background(), "401", "p1", []float32{1, 0}, 5, 0.2)
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
}

func TestRetriever_Retrieve_Errors(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	_, err := New(src).Retrieve(context.Background(), "401", "p1", []float32{1}, 5, 0.2)
	assert.ErrorIs(t, err, entity.ErrRetrieval)

	_, err = New(src).Retrieve(context.Background(), "401", "p1", []float32{1}, 0, 0.2)
	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Equal(t, 1, src.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(src).Retrieve(ctx, "401", "p1", []float32{1}, 5, 0.2)
	assert.ErrorIs(t, err, entity.ErrTimeout)
}
