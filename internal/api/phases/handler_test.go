package phases

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsecase struct {
	active    string
	published []entity.RAGConfig
	err       error
}

func (f *fakeUsecase) GetConfig(phase string) (entity.RAGConfig, error) {
	if phase == "" {
		phase = f.active
	}
	if phase != "p1" && phase != "p2" {
		return entity.RAGConfig{}, fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, phase)
	}
	return entity.RAGConfig{Phase: phase, Model: "m", TopK: 5, ChunkSize: 400}, nil
}

func (f *fakeUsecase) ListPhases() *entity.ListPhasesResponse {
	return &entity.ListPhasesResponse{Active: f.active, Phases: []string{"p1", "p2"}}
}

func (f *fakeUsecase) ActivatePhase(_ context.Context, phase string) error {
	if f.err != nil {
		return f.err
	}
	f.active = phase
	return nil
}

func (f *fakeUsecase) PublishPhase(_ context.Context, cfg entity.RAGConfig) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, cfg)
	return nil
}

func (f *fakeUsecase) RetirePhase(_ context.Context, phase string) (*entity.RetirePhaseResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.RetirePhaseResponse{Phase: phase, ChunksDeleted: 7}, nil
}

func serve(uc PhaseUsecase, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(uc))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rec
}

func TestGetConfig(t *testing.T) {
	uc := &fakeUsecase{active: "p1"}

	rec := serve(uc, http.MethodGet, "/phases/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"p1"`)

	rec = serve(uc, http.MethodGet, "/phases/config?phase=p2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"p2"`)

	rec = serve(uc, http.MethodGet, "/phases/config?phase=p9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivatePhase(t *testing.T) {
	uc := &fakeUsecase{active: "p1"}

	rec := serve(uc, http.MethodPut, "/phases/active", `{"phase":"p2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":"p2","phases":["p1","p2"]}`, rec.Body.String())

	rec = serve(uc, http.MethodPut, "/phases/active", `{"phase":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	uc.err = fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, "p9")
	rec = serve(uc, http.MethodPut, "/phases/active", `{"phase":"p9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishPhase(t *testing.T) {
	uc := &fakeUsecase{active: "p1"}

	rec := serve(uc, http.MethodPost, "/phases", `{"phase":"p3","model":"m","top_k":5,"chunk_size":200,"chunk_overlap":20,"embedding":{"model":"e"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, uc.published, 1)
	assert.Equal(t, 20, uc.published[0].ChunkOverlap)

	rec = serve(uc, http.MethodPost, "/phases", `{"phase":"p3","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	uc.err = fmt.Errorf("%w: %q", entity.ErrPhaseExists, "p3")
	rec = serve(uc, http.MethodPost, "/phases", `{"phase":"p3"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetirePhase(t *testing.T) {
	uc := &fakeUsecase{active: "p1"}

	rec := serve(uc, http.MethodDelete, "/phases/p2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"phase":"p2","chunks_deleted":7}`, rec.Body.String())

	uc.err = fmt.Errorf("%w: %q", entity.ErrPhaseActive, "p1")
	rec = serve(uc, http.MethodDelete, "/phases/p1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
