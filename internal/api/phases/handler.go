package phases

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/pkg/logger"
	"github.com/futig/zoning-qa/internal/pkg/response"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	usecase PhaseUsecase
}

func NewHandler(usecase PhaseUsecase) *Handler {
	return &Handler{
		usecase: usecase,
	}
}

// ListPhases handles GET /phases
func (h *Handler) ListPhases(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "ListPhases")
	response.Success(ctx, w, h.usecase.ListPhases())
}

// GetConfig handles GET /phases/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "GetConfig")

	cfg, err := h.usecase.GetConfig(r.URL.Query().Get("phase"))
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	response.Success(ctx, w, cfg)
}

// ActivatePhase handles PUT /phases/active
func (h *Handler) ActivatePhase(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "ActivatePhase")

	var body entity.ActivatePhaseBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		response.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(body.Phase) == "" {
		response.UsecaseError(ctx, w, fmt.Errorf("%w: phase", entity.ErrMissingField))
		return
	}

	if err := h.usecase.ActivatePhase(ctx, body.Phase); err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	response.Success(ctx, w, h.usecase.ListPhases())
}

// PublishPhase handles POST /phases
func (h *Handler) PublishPhase(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "PublishPhase")

	var cfg entity.RAGConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		response.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.usecase.PublishPhase(ctx, cfg); err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	response.Created(ctx, w, cfg)
}

// RetirePhase handles DELETE /phases/{phase}
func (h *Handler) RetirePhase(w http.ResponseWriter, r *http.Request) {
	phase := chi.URLParam(r, "phase")
	ctx := logger.AddFields(r.Context(),
		zap.String("phase", phase),
		zap.String("action", "RetirePhase"),
	)

	res, err := h.usecase.RetirePhase(ctx, phase)
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	response.Success(ctx, w, res)
}
