package phases

import (
	"context"

	"github.com/futig/zoning-qa/internal/entity"
)

type PhaseUsecase interface {
	GetConfig(phase string) (entity.RAGConfig, error)
	ListPhases() *entity.ListPhasesResponse
	ActivatePhase(ctx context.Context, phase string) error
	PublishPhase(ctx context.Context, cfg entity.RAGConfig) error
	RetirePhase(ctx context.Context, phase string) (*entity.RetirePhaseResponse, error)
}
