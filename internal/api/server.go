package api

import (
	"net/http"
	"time"

	"github.com/futig/zoning-qa/internal/api/docs"
	"github.com/futig/zoning-qa/internal/api/middleware"
	phaseapi "github.com/futig/zoning-qa/internal/api/phases"
	ragapi "github.com/futig/zoning-qa/internal/api/rag"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the HTTP router. requestTimeout should
// exceed the query timeout so the usecase reports its own deadline.
func SetupRouter(ragHandler *ragapi.Handler, phaseHandler *phaseapi.Handler, requestTimeout time.Duration, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Swagger documentation endpoints
	docs.RegisterRoutes(r)

	ragapi.RegisterRoutes(r, ragHandler)
	phaseapi.RegisterRoutes(r, phaseHandler)

	return r
}
