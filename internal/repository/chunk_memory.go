package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/futig/zoning-qa/internal/entity"
)

type memoryDocument struct {
	chunks    []entity.DocumentChunk
	indexedAt time.Time
}

// ChunkMemory keeps chunks in process. Documents are swapped whole under
// the write lock.
type ChunkMemory struct {
	mu   sync.RWMutex
	docs map[entity.DocumentKey]memoryDocument
	now  func() time.Time
}

func NewChunkMemory() *ChunkMemory {
	return &ChunkMemory{
		docs: make(map[entity.DocumentKey]memoryDocument),
		now:  time.Now,
	}
}

func (r *ChunkMemory) ReplaceChunks(_ context.Context, key entity.DocumentKey, chunks []entity.DocumentChunk) error {
	stored := make([]entity.DocumentChunk, len(chunks))
	for i, c := range chunks {
		c.MunicipalityID = key.MunicipalityID
		c.DocumentTitle = key.DocumentTitle
		c.Phase = key.Phase
		stored[i] = c
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].ChunkIndex < stored[j].ChunkIndex })

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(stored) == 0 {
		delete(r.docs, key)
		return nil
	}
	r.docs[key] = memoryDocument{chunks: stored, indexedAt: r.now()}
	return nil
}

func (r *ChunkMemory) Candidates(_ context.Context, municipalityID, phase string) ([]entity.DocumentChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.keys(func(k entity.DocumentKey) bool {
		return k.MunicipalityID == municipalityID && k.Phase == phase
	})

	out := make([]entity.DocumentChunk, 0)
	for _, k := range keys {
		out = append(out, r.docs[k].chunks...)
	}
	return out, nil
}

func (r *ChunkMemory) MunicipalityExists(_ context.Context, municipalityID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k := range r.docs {
		if k.MunicipalityID == municipalityID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ChunkMemory) ListDocuments(_ context.Context, municipalityID, phase string) ([]*entity.DocumentSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.keys(func(k entity.DocumentKey) bool {
		return k.MunicipalityID == municipalityID && (phase == "" || k.Phase == phase)
	})

	out := make([]*entity.DocumentSummary, 0, len(keys))
	for _, k := range keys {
		doc := r.docs[k]
		out = append(out, &entity.DocumentSummary{
			DocumentTitle: k.DocumentTitle,
			Phase:         k.Phase,
			ChunkCount:    len(doc.chunks),
			IndexedAt:     doc.indexedAt,
		})
	}
	return out, nil
}

func (r *ChunkMemory) DeletePhase(_ context.Context, phase string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for k, doc := range r.docs {
		if k.Phase == phase {
			deleted += int64(len(doc.chunks))
			delete(r.docs, k)
		}
	}
	return deleted, nil
}

func (r *ChunkMemory) PhaseHasChunks(_ context.Context, phase string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k := range r.docs {
		if k.Phase == phase {
			return true, nil
		}
	}
	return false, nil
}

// keys returns matching keys ordered by title then phase. Callers hold the lock.
func (r *ChunkMemory) keys(match func(entity.DocumentKey) bool) []entity.DocumentKey {
	var keys []entity.DocumentKey
	for k := range r.docs {
		if match(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DocumentTitle != keys[j].DocumentTitle {
			return keys[i].DocumentTitle < keys[j].DocumentTitle
		}
		return keys[i].Phase < keys[j].Phase
	})
	return keys
}
