package builder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/futig/zoning-qa/internal/api"
	phaseapi "github.com/futig/zoning-qa/internal/api/phases"
	ragapi "github.com/futig/zoning-qa/internal/api/rag"
	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/embedding"
	"github.com/futig/zoning-qa/internal/phase"
	"github.com/futig/zoning-qa/internal/pkg/formatter"
	"github.com/futig/zoning-qa/internal/pkg/validator"
	"github.com/futig/zoning-qa/internal/repository"
	"github.com/futig/zoning-qa/internal/retriever"
	"github.com/futig/zoning-qa/internal/synthesizer"
	ragusecase "github.com/futig/zoning-qa/internal/usecase/rag"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// requestBodySlack covers JSON framing around the document text
const requestBodySlack = 64 << 10

// core is what both the server and the ingest CLI run on
type core struct {
	cfg     *config.Config
	logger  *zap.Logger
	usecase *ragusecase.RAGUsecase
	phases  *phase.Manager
	db      *pgxpool.Pool
	redis   *redis.Client

	stopWatch context.CancelFunc
}

func (c *core) close() {
	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
}

// Override adjusts the loaded configuration, e.g. from command line flags
type Override func(cfg *config.Config)

func buildCore(ctx context.Context, overrides ...Override) (*core, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building application",
		zap.String("environment", cfg.Environment),
		zap.String("server_addr", cfg.ServerAddr),
	)

	// Phases are validated before any I/O
	phases, err := phase.Load(cfg.RAG.PhasesFile)
	if err != nil {
		return nil, fmt.Errorf("load phases: %w", err)
	}

	provider, generator, err := providers(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup providers: %w", err)
	}

	c := &core{cfg: cfg, logger: logger, phases: phases}

	var chunks repository.ChunkRepository
	if cfg.EnableMocks {
		logger.Info("Using in-memory chunk store")
		chunks = repository.NewChunkMemory()
	} else {
		// Run database migrations
		logger.Info("Running database migrations")
		if err := repository.RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("Database migrations completed successfully")

		db, err := setupDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		c.db = db
		chunks = repository.NewChunkPostgres(db)

		if err := phases.Attach(ctx, repository.NewPhasePostgres(db)); err != nil {
			c.close()
			return nil, fmt.Errorf("attach phase store: %w", err)
		}
	}

	if cfg.RAG.ActivePhase != "" {
		if err := phases.Activate(ctx, cfg.RAG.ActivePhase); err != nil {
			c.close()
			return nil, fmt.Errorf("activate phase from environment: %w", err)
		}
	}
	logger.Info("Phases loaded",
		zap.Strings("phases", phases.Phases()),
		zap.String("active", phases.Active()),
	)

	cache, redisClient, err := setupCache(ctx, cfg.Cache, logger)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("setup embedding cache: %w", err)
	}
	c.redis = redisClient

	embedder := embedding.NewClient(provider, cache,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithRetry(cfg.Embedding.Retry),
		embedding.WithRateLimiter(newLimiter(cfg.Embedding.RateLimit)),
	)
	synth := synthesizer.New(generator,
		synthesizer.WithRetry(cfg.LLM.Retry),
		synthesizer.WithRateLimiter(newLimiter(cfg.LLM.RateLimit)),
	)

	c.usecase = ragusecase.NewUsecase(
		chunks,
		phases,
		embedder,
		retriever.New(chunks),
		synth,
		validator.New(cfg.Limits),
		ragusecase.Config{
			QueryTimeout:  cfg.RAG.QueryTimeout,
			IngestTimeout: cfg.RAG.IngestTimeout,
			IngestWorkers: cfg.RAG.IngestWorkers,
		},
		logger,
	)
	logger.Info("Use cases initialized")

	return c, nil
}

// Build assembles the HTTP service
func Build() (*App, error) {
	c, err := buildCore(context.Background())
	if err != nil {
		return nil, err
	}
	cfg := c.cfg

	if c.db != nil && cfg.RAG.PhaseRefreshInterval > 0 {
		watchCtx, stop := context.WithCancel(ctxzap.ToContext(context.Background(), c.logger))
		c.stopWatch = stop
		go c.phases.Watch(watchCtx, cfg.RAG.PhaseRefreshInterval)
		c.logger.Info("Watching phase store", zap.Duration("interval", cfg.RAG.PhaseRefreshInterval))
	}

	// Setup API handlers
	ragHandler := ragapi.NewHandler(c.usecase, formatter.NewFactory(), int64(cfg.Limits.MaxDocumentBytes)+requestBodySlack)
	phaseHandler := phaseapi.NewHandler(c.usecase)
	c.logger.Info("API handlers initialized")

	requestTimeout := max(cfg.RAG.QueryTimeout, cfg.RAG.IngestTimeout) + 5*time.Second
	router := api.SetupRouter(ragHandler, phaseHandler, requestTimeout, cfg.CORSAllowedOrigins, c.logger)
	c.logger.Info("HTTP router configured")

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	c.logger.Info("Application built successfully",
		zap.String("environment", cfg.Environment),
	)

	return &App{
		server: server,
		core:   c,
		logger: c.logger,
	}, nil
}

// Ingestor runs batch ingestion without the HTTP server
type Ingestor struct {
	core *core
}

// BuildIngestor assembles the components used by the ingest CLI
func BuildIngestor(overrides ...Override) (*Ingestor, error) {
	c, err := buildCore(context.Background(), overrides...)
	if err != nil {
		return nil, err
	}
	return &Ingestor{core: c}, nil
}

func (i *Ingestor) Usecase() *ragusecase.RAGUsecase {
	return i.core.usecase
}

func (i *Ingestor) Logger() *zap.Logger {
	return i.core.logger
}

func (i *Ingestor) Close() {
	i.core.close()
	_ = i.core.logger.Sync()
}
