package repository

import (
	"context"

	"github.com/futig/zoning-qa/internal/entity"
)

// ChunkRepository stores document chunks scoped by municipality and phase.
// Readers never observe a partially replaced document.
type ChunkRepository interface {
	// ReplaceChunks atomically swaps every chunk of the document for chunks
	ReplaceChunks(ctx context.Context, key entity.DocumentKey, chunks []entity.DocumentChunk) error
	// Candidates returns every chunk of the municipality and phase ordered by
	// document title and chunk index
	Candidates(ctx context.Context, municipalityID, phase string) ([]entity.DocumentChunk, error)
	MunicipalityExists(ctx context.Context, municipalityID string) (bool, error)
	// ListDocuments summarizes indexed documents. An empty phase lists all phases.
	ListDocuments(ctx context.Context, municipalityID, phase string) ([]*entity.DocumentSummary, error)
	DeletePhase(ctx context.Context, phase string) (int64, error)
	PhaseHasChunks(ctx context.Context, phase string) (bool, error)
}
