package rag

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/pkg/logger"
	"github.com/futig/zoning-qa/internal/pkg/response"
	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

type Handler struct {
	usecase      RAGUsecase
	formatters   FormatterFactory
	maxBodyBytes int64
}

// NewHandler creates a handler. maxBodyBytes bounds request bodies; the
// document text limit itself is enforced by the validator.
func NewHandler(usecase RAGUsecase, formatters FormatterFactory, maxBodyBytes int64) *Handler {
	return &Handler{
		usecase:      usecase,
		formatters:   formatters,
		maxBodyBytes: maxBodyBytes,
	}
}

// IngestDocument handles POST /municipalities/{municipality_id}/documents
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	municipalityID := chi.URLParam(r, "municipality_id")
	ctx := logger.AddFields(r.Context(),
		zap.String("municipality_id", municipalityID),
		zap.String("action", "IngestDocument"),
	)

	var body entity.IngestDocumentBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&body); err != nil {
		response.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.usecase.IngestDocument(ctx, toIngestRequest(municipalityID, &body))
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "document accepted", zap.String("run_id", res.RunID), zap.Int("chunks", res.ChunksCreated))

	response.Created(ctx, w, toIngestResponse(res))
}

// ListDocuments handles GET /municipalities/{municipality_id}/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	municipalityID := chi.URLParam(r, "municipality_id")
	phase := r.URL.Query().Get("phase")
	ctx := logger.AddFields(r.Context(),
		zap.String("municipality_id", municipalityID),
		zap.String("action", "ListDocuments"),
	)

	docs, err := h.usecase.ListDocuments(ctx, municipalityID, phase)
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	ctxzap.Debug(ctx, "documents listed", zap.Int("count", len(docs)))

	response.Success(ctx, w, &entity.ListDocumentsResponse{
		MunicipalityID: municipalityID,
		Phase:          phase,
		Documents:      docs,
	})
}

// AskQuestion handles POST /municipalities/{municipality_id}/questions
func (h *Handler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	municipalityID := chi.URLParam(r, "municipality_id")
	ctx := logger.AddFields(r.Context(),
		zap.String("municipality_id", municipalityID),
		zap.String("action", "AskQuestion"),
	)

	var body entity.AskQuestionBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&body); err != nil {
		response.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.usecase.AskQuestion(ctx, municipalityID, body.Question, toAskOptions(&body))
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	response.Success(ctx, w, resp)
}

// ExportAnswer handles POST /municipalities/{municipality_id}/questions/export.
// The answer is rendered as a downloadable file, markdown by default.
func (h *Handler) ExportAnswer(w http.ResponseWriter, r *http.Request) {
	municipalityID := chi.URLParam(r, "municipality_id")
	ctx := logger.AddFields(r.Context(),
		zap.String("municipality_id", municipalityID),
		zap.String("action", "ExportAnswer"),
	)

	format := entity.ResultFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = entity.FormatMarkdown
	}
	out, err := h.formatters.Create(format)
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	var body entity.AskQuestionBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&body); err != nil {
		response.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.usecase.AskQuestion(ctx, municipalityID, body.Question, toAskOptions(&body))
	if err != nil {
		response.UsecaseError(ctx, w, err)
		return
	}

	data, err := out.Format(&entity.AnswerReport{
		MunicipalityID: municipalityID,
		Question:       body.Question,
		Answer:         resp,
	})
	if err != nil {
		response.Error(ctx, w, http.StatusInternalServerError, "failed to render answer", err)
		return
	}

	ctxzap.Info(ctx, "answer exported", zap.String("format", string(format)), zap.Int("bytes", len(data)))

	w.Header().Set("Content-Type", out.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s",
		strconv.Quote("answer-"+municipalityID+out.FileExtension())))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
