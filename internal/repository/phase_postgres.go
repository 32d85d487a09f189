package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	loadPhasesSQL = `SELECT name, config FROM rag_phases ORDER BY name`

	loadActiveSQL = `SELECT name FROM rag_active_phase WHERE id`

	savePhaseSQL = `INSERT INTO rag_phases (name, config) VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING`

	setActiveSQL = `INSERT INTO rag_active_phase (id, name) VALUES (TRUE, $1)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`

	removePhaseSQL = `DELETE FROM rag_phases WHERE name = $1`
)

// PhasePostgres keeps published phases in rag_phases. Chunk replacement
// holds a share lock on the phase row, so removing a phase waits for
// in-flight ingestion and later ingestion into it fails.
type PhasePostgres struct {
	db DB
}

func NewPhasePostgres(db DB) *PhasePostgres {
	return &PhasePostgres{
		db: db,
	}
}

// LoadPhases returns every published phase ordered by name and the active
// name, which is empty until one is set
func (r *PhasePostgres) LoadPhases(ctx context.Context) ([]entity.RAGConfig, string, error) {
	rows, err := r.db.Query(ctx, loadPhasesSQL)
	if err != nil {
		ctxzap.Error(ctx, "failed to load phases", zap.Error(err))
		return nil, "", err
	}
	defer rows.Close()

	configs := make([]entity.RAGConfig, 0)
	for rows.Next() {
		var (
			name string
			data []byte
		)
		if err := rows.Scan(&name, &data); err != nil {
			return nil, "", fmt.Errorf("scan phase: %w", err)
		}

		var cfg entity.RAGConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("%w: decode phase %q: %v", entity.ErrConfiguration, name, err)
		}
		cfg.Phase = name
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("row iteration error: %w", err)
	}

	var active string
	err = r.db.QueryRow(ctx, loadActiveSQL).Scan(&active)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		ctxzap.Error(ctx, "failed to load active phase", zap.Error(err))
		return nil, "", err
	}

	return configs, active, nil
}

func (r *PhasePostgres) SavePhase(ctx context.Context, cfg entity.RAGConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode phase: %w", err)
	}

	tag, err := r.db.Exec(ctx, savePhaseSQL, cfg.Phase, data)
	if err != nil {
		ctxzap.Error(ctx, "failed to save phase", zap.Error(err), zap.String("phase", cfg.Phase))
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", entity.ErrPhaseExists, cfg.Phase)
	}
	return nil
}

func (r *PhasePostgres) SetActive(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, setActiveSQL, name); err != nil {
		ctxzap.Error(ctx, "failed to set active phase", zap.Error(err), zap.String("phase", name))
		return err
	}
	return nil
}

func (r *PhasePostgres) RemovePhase(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, removePhaseSQL, name)
	if err != nil {
		ctxzap.Error(ctx, "failed to remove phase", zap.Error(err), zap.String("phase", name))
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, name)
	}
	return nil
}
