package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// GetConfig returns the named phase, or the active one for an empty name
func (uc *RAGUsecase) GetConfig(phase string) (entity.RAGConfig, error) {
	return uc.phases.GetConfig(phase)
}

func (uc *RAGUsecase) ListPhases() *entity.ListPhasesResponse {
	return &entity.ListPhasesResponse{
		Active: uc.phases.Active(),
		Phases: uc.phases.Phases(),
	}
}

// ActivatePhase switches the phase used by requests that do not name one
func (uc *RAGUsecase) ActivatePhase(ctx context.Context, phase string) error {
	previous := uc.phases.Active()
	if err := uc.phases.Activate(ctx, phase); err != nil {
		return err
	}

	ctxzap.Info(ctx, "phase activated", zap.String("phase", phase), zap.String("previous", previous))
	return nil
}

// PublishPhase adds a new phase without activating it. A name that still
// has indexed chunks is taken, even when no phase holds it.
func (uc *RAGUsecase) PublishPhase(ctx context.Context, cfg entity.RAGConfig) error {
	has, err := uc.chunks.PhaseHasChunks(ctx, cfg.Phase)
	if err != nil {
		return fmt.Errorf("%w: check phase chunks: %v", entity.ErrRetrieval, err)
	}
	if has {
		return fmt.Errorf("%w: %q still has indexed chunks", entity.ErrPhaseExists, cfg.Phase)
	}

	if err := uc.phases.Publish(ctx, cfg); err != nil {
		return err
	}

	ctxzap.Info(ctx, "phase published", zap.String("phase", cfg.Phase))
	return nil
}

// RetirePhase removes the phase then deletes every chunk built under it.
// The active phase cannot be retired. Retiring an unknown name that still
// has chunks only deletes them.
func (uc *RAGUsecase) RetirePhase(ctx context.Context, phase string) (*entity.RetirePhaseResponse, error) {
	uc.phaseMu.Lock()
	err := uc.phases.Retire(ctx, phase)
	uc.phaseMu.Unlock()

	if errors.Is(err, entity.ErrPhaseNotFound) {
		if err := uc.leftover(ctx, phase); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	deleted, err := uc.chunks.DeletePhase(ctx, phase)
	if err != nil {
		return nil, fmt.Errorf("%w: delete phase chunks: %v", entity.ErrRetrieval, err)
	}

	ctxzap.Info(ctx, "phase retired", zap.String("phase", phase), zap.Int64("chunks_deleted", deleted))

	return &entity.RetirePhaseResponse{
		Phase:         phase,
		ChunksDeleted: deleted,
	}, nil
}

// leftover returns nil when phase is unknown everywhere but still has
// chunks, as after a retirement whose chunk deletion failed
func (uc *RAGUsecase) leftover(ctx context.Context, phase string) error {
	if phase == "" {
		return fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, phase)
	}
	if err := uc.phases.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: refresh phases: %v", entity.ErrRetrieval, err)
	}
	if _, err := uc.phases.GetConfig(phase); err == nil {
		return fmt.Errorf("%w: %q was published elsewhere, retry", entity.ErrPhaseExists, phase)
	}

	has, err := uc.chunks.PhaseHasChunks(ctx, phase)
	if err != nil {
		return fmt.Errorf("%w: check phase chunks: %v", entity.ErrRetrieval, err)
	}
	if !has {
		return fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, phase)
	}
	return nil
}
