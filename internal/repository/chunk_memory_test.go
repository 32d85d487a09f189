package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMemory_ReplaceAndCandidates(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkMemory()

	require.NoError(t, repo.ReplaceChunks(ctx, testKey, testChunks()))
	other := entity.DocumentKey{MunicipalityID: "401", DocumentTitle: "Appendix", Phase: "p1"}
	require.NoError(t, repo.ReplaceChunks(ctx, other, testChunks()[:1]))
	require.NoError(t, repo.ReplaceChunks(ctx, entity.DocumentKey{MunicipalityID: "401", DocumentTitle: "Zoning Code", Phase: "p2"}, testChunks()))

	chunks, err := repo.Candidates(ctx, "401", "p1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Appendix", chunks[0].DocumentTitle)
	assert.Equal(t, "Zoning Code", chunks[1].DocumentTitle)
	assert.Equal(t, 1, chunks[2].ChunkIndex)
	for _, c := range chunks {
		assert.Equal(t, "p1", c.Phase)
		assert.Equal(t, "401", c.MunicipalityID)
	}

	// replacement drops stale chunks
	require.NoError(t, repo.ReplaceChunks(ctx, testKey, testChunks()[:1]))
	chunks, err = repo.Candidates(ctx, "401", "p1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	none, err := repo.Candidates(ctx, "999", "p1")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChunkMemory_ListExistsDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkMemory()

	exists, err := repo.MunicipalityExists(ctx, "401")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.ReplaceChunks(ctx, testKey, testChunks()))
	require.NoError(t, repo.ReplaceChunks(ctx, entity.DocumentKey{MunicipalityID: "401", DocumentTitle: "Zoning Code", Phase: "p2"}, testChunks()[:1]))

	exists, err = repo.MunicipalityExists(ctx, "401")
	require.NoError(t, err)
	assert.True(t, exists)

	docs, err := repo.ListDocuments(ctx, "401", "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, docs[0].ChunkCount)
	assert.Equal(t, "p2", docs[1].Phase)

	docs, err = repo.ListDocuments(ctx, "401", "p2")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	has, err := repo.PhaseHasChunks(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, has)

	deleted, err := repo.DeletePhase(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	chunks, err := repo.Candidates(ctx, "401", "p1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	has, err = repo.PhaseHasChunks(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestChunkMemory_ReadersSeeWholeDocuments(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkMemory()

	makeChunks := func(n int) []entity.DocumentChunk {
		out := make([]entity.DocumentChunk, n)
		for i := range out {
			out[i] = entity.DocumentChunk{ChunkIndex: i, ChunkText: fmt.Sprintf("v%d-%d", n, i), Embedding: []float32{1}}
		}
		return out
	}

	var wg sync.WaitGroup
	for n := 1; n <= 20; n++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = repo.ReplaceChunks(ctx, testKey, makeChunks(n))
		}(n)
		go func() {
			defer wg.Done()
			chunks, err := repo.Candidates(ctx, "401", "p1")
			assert.NoError(t, err)
			for i, c := range chunks {
				assert.Equal(t, fmt.Sprintf("v%d-%d", len(chunks), i), c.ChunkText)
			}
		}()
	}
	wg.Wait()
}
