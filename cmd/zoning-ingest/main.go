package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/futig/zoning-qa/internal/builder"
	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/ingestion"
	"go.uber.org/zap"
)

// Flags are registered before the builder parses the command line
var (
	dir          = flag.String("dir", ".", "Directory with *.txt documents")
	municipality = flag.String("municipality", "", "Municipality the documents belong to")
	phaseName    = flag.String("phase", "", "Phase to index under (default: active phase)")
	workers      = flag.Int("workers", 0, "Concurrent documents (default: RAG_INGEST_WORKERS)")
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ingestor, err := builder.BuildIngestor(func(cfg *config.Config) {
		if *workers > 0 {
			cfg.RAG.IngestWorkers = *workers
		}
	})
	if err != nil {
		return fmt.Errorf("failed to build ingestor: %w", err)
	}
	defer ingestor.Close()

	logger := ingestor.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reqs, err := ingestion.LoadDir(*dir, *municipality, *phaseName)
	if err != nil {
		return err
	}
	logger.Info("Ingesting documents",
		zap.String("dir", *dir),
		zap.String("municipality_id", *municipality),
		zap.Int("documents", len(reqs)),
	)

	outcomes := ingestor.Usecase().IngestDocuments(ctx, reqs)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			logger.Error("Document failed", zap.String("document_title", o.DocumentTitle), zap.Error(o.Err))
			continue
		}
		logger.Info("Document indexed",
			zap.String("document_title", o.DocumentTitle),
			zap.String("run_id", o.Result.RunID),
			zap.Int("chunks", o.Result.ChunksCreated),
			zap.String("phase", o.Result.Phase),
		)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(outcomes))
	}
	return nil
}
