package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// JSON writes a JSON response
func JSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent
			ctxzap.Error(ctx, "failed to encode response", zap.Error(err))
		}
	}
}

// Error logs err and writes an error response. Server errors never expose
// the cause to the client.
func Error(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	switch {
	case err == nil:
		ctxzap.Warn(ctx, message, zap.Int("status", status))
	case status >= http.StatusInternalServerError:
		ctxzap.Error(ctx, message, zap.Int("status", status), zap.Error(err))
	default:
		ctxzap.Warn(ctx, message, zap.Int("status", status), zap.Error(err))
	}

	JSON(ctx, w, status, entity.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// Created writes a 201 Created response
func Created(ctx context.Context, w http.ResponseWriter, data any) {
	JSON(ctx, w, http.StatusCreated, data)
}

// Success writes a 200 OK response
func Success(ctx context.Context, w http.ResponseWriter, data any) {
	JSON(ctx, w, http.StatusOK, data)
}

// UsecaseError maps a domain error to its status code. The timeout check
// comes first so a deadline hit inside ingestion or retrieval is a 504.
func UsecaseError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrTimeout):
		Error(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	case errors.Is(err, entity.ErrPhaseNotFound):
		Error(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, entity.ErrPhaseExists), errors.Is(err, entity.ErrPhaseActive):
		Error(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, entity.ErrConfiguration):
		Error(ctx, w, http.StatusUnprocessableEntity, err.Error(), err)
	case errors.Is(err, entity.ErrValidation):
		Error(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, entity.ErrRetrieval):
		Error(ctx, w, http.StatusServiceUnavailable, "index store unavailable", err)
	default:
		Error(ctx, w, http.StatusInternalServerError, "internal server error", err)
	}
}
