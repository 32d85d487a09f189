package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// DB is satisfied by *pgxpool.Pool and by pgxmock pools
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	lockPhaseSQL = `SELECT 1 FROM rag_phases WHERE name = $1 FOR SHARE`

	lockDocumentSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	deleteDocumentSQL = `DELETE FROM document_chunks
WHERE municipality_id = $1 AND document_title = $2 AND phase = $3`

	candidatesSQL = `SELECT municipality_id, document_title, chunk_index, chunk_text, embedding::real[], phase
FROM document_chunks
WHERE municipality_id = $1 AND phase = $2
ORDER BY document_title, chunk_index`

	municipalityExistsSQL = `SELECT EXISTS (SELECT 1 FROM document_chunks WHERE municipality_id = $1)`

	listDocumentsSQL = `SELECT document_title, phase, COUNT(*), MAX(created_at)
FROM document_chunks
WHERE municipality_id = $1 AND ($2::text = '' OR phase = $2)
GROUP BY document_title, phase
ORDER BY document_title, phase`

	deletePhaseSQL = `DELETE FROM document_chunks WHERE phase = $1`

	phaseHasChunksSQL = `SELECT EXISTS (SELECT 1 FROM document_chunks WHERE phase = $1)`
)

var chunkColumns = []string{"municipality_id", "document_title", "chunk_index", "chunk_text", "embedding", "phase"}

type ChunkPostgres struct {
	db DB
}

func NewChunkPostgres(db DB) *ChunkPostgres {
	return &ChunkPostgres{
		db: db,
	}
}

// ReplaceChunks deletes and re-inserts the document in one transaction.
// Concurrent replacements of the same document serialize on an advisory lock.
// The phase row is share-locked for the whole swap and a phase missing from
// rag_phases fails with entity.ErrPhaseNotFound.
func (r *ChunkPostgres) ReplaceChunks(ctx context.Context, key entity.DocumentKey, chunks []entity.DocumentChunk) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		ctxzap.Error(ctx, "failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			ctxzap.Warn(ctx, "failed to rollback chunk replacement", zap.Error(rbErr))
		}
	}()

	var one int32
	if err = tx.QueryRow(ctx, lockPhaseSQL, key.Phase).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, key.Phase)
		}
		ctxzap.Error(ctx, "failed to lock phase", zap.Error(err))
		return fmt.Errorf("lock phase: %w", err)
	}

	if _, err = tx.Exec(ctx, lockDocumentSQL, key.String()); err != nil {
		ctxzap.Error(ctx, "failed to lock document", zap.Error(err))
		return fmt.Errorf("lock document: %w", err)
	}

	if _, err = tx.Exec(ctx, deleteDocumentSQL, key.MunicipalityID, key.DocumentTitle, key.Phase); err != nil {
		ctxzap.Error(ctx, "failed to delete previous chunks", zap.Error(err))
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	if len(chunks) > 0 {
		rows := make([][]any, 0, len(chunks))
		for _, c := range chunks {
			rows = append(rows, []any{
				key.MunicipalityID,
				key.DocumentTitle,
				int32(c.ChunkIndex),
				c.ChunkText,
				pgvector.NewVector(c.Embedding),
				key.Phase,
			})
		}

		var copied int64
		copied, err = tx.CopyFrom(ctx, pgx.Identifier{"document_chunks"}, chunkColumns, pgx.CopyFromRows(rows))
		if err != nil {
			ctxzap.Error(ctx, "failed to insert chunks", zap.Error(err))
			return fmt.Errorf("insert chunks: %w", err)
		}
		if copied != int64(len(chunks)) {
			err = fmt.Errorf("insert chunks: copied %d of %d rows", copied, len(chunks))
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		ctxzap.Error(ctx, "failed to commit chunk replacement", zap.Error(err))
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (r *ChunkPostgres) Candidates(ctx context.Context, municipalityID, phase string) ([]entity.DocumentChunk, error) {
	rows, err := r.db.Query(ctx, candidatesSQL, municipalityID, phase)
	if err != nil {
		ctxzap.Error(ctx, "failed to query candidates", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	chunks := make([]entity.DocumentChunk, 0)
	for rows.Next() {
		var (
			c     entity.DocumentChunk
			index int32
		)
		if err := rows.Scan(&c.MunicipalityID, &c.DocumentTitle, &index, &c.ChunkText, &c.Embedding, &c.Phase); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.ChunkIndex = int(index)
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

func (r *ChunkPostgres) MunicipalityExists(ctx context.Context, municipalityID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, municipalityExistsSQL, municipalityID).Scan(&exists); err != nil {
		ctxzap.Error(ctx, "failed to check municipality", zap.Error(err))
		return false, err
	}
	return exists, nil
}

func (r *ChunkPostgres) ListDocuments(ctx context.Context, municipalityID, phase string) ([]*entity.DocumentSummary, error) {
	rows, err := r.db.Query(ctx, listDocumentsSQL, municipalityID, phase)
	if err != nil {
		ctxzap.Error(ctx, "failed to list documents", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	docs := make([]*entity.DocumentSummary, 0)
	for rows.Next() {
		var (
			d     entity.DocumentSummary
			count int64
		)
		if err := rows.Scan(&d.DocumentTitle, &d.Phase, &count, &d.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ChunkCount = int(count)
		docs = append(docs, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

func (r *ChunkPostgres) DeletePhase(ctx context.Context, phase string) (int64, error) {
	tag, err := r.db.Exec(ctx, deletePhaseSQL, phase)
	if err != nil {
		ctxzap.Error(ctx, "failed to delete phase chunks", zap.Error(err), zap.String("phase", phase))
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChunkPostgres) PhaseHasChunks(ctx context.Context, phase string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, phaseHasChunksSQL, phase).Scan(&exists); err != nil {
		ctxzap.Error(ctx, "failed to check phase chunks", zap.Error(err), zap.String("phase", phase))
		return false, err
	}
	return exists, nil
}
