package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/corpusworks/ingest/internal/chunk"
	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/connector/local"
	minioconn "github.com/corpusworks/ingest/internal/connector/minio"
	neo4jconn "github.com/corpusworks/ingest/internal/connector/neo4j"
	pgconn "github.com/corpusworks/ingest/internal/connector/pgvector"
	s3conn "github.com/corpusworks/ingest/internal/connector/s3"
	valkeyconn "github.com/corpusworks/ingest/internal/connector/valkey"
	"github.com/corpusworks/ingest/internal/embedding"
	"github.com/corpusworks/ingest/internal/partition"
	"github.com/corpusworks/ingest/internal/pipeline"
)

func main() {
	// Best effort; environment variables win over .env entries.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Run.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connectors
	registry := connector.NewRegistry()
	local.Register(registry)
	s3conn.Register(registry)
	minioconn.Register(registry)
	pgconn.Register(registry)
	valkeyconn.Register(registry)
	neo4jconn.Register(registry)

	partitioner := partition.Default()

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Chunk.MaxCharacters > 0 {
		opts = append(opts, pipeline.WithChunker(chunk.New(cfg.Chunk.MaxCharacters, cfg.Chunk.Overlap)))
	}

	embedClient, err := embedding.NewEmbedder(cfg)
	if err != nil {
		logger.Error("failed to build embedding client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if embedClient != nil {
		opts = append(opts,
			pipeline.WithEmbedder(embedding.NewElementEmbedder(embedClient), embedClient.ModelID()))
		logger.Info("embedding enabled", slog.String("model", embedClient.ModelID()))
	} else {
		logger.Info("embedding disabled: no provider configured")
	}

	p, err := pipeline.New(cfg, registry, partitioner, partitioner.SupportedExtensions(), opts...)
	if err != nil {
		logger.Error("failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	summary, err := p.Run(ctx)
	if err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if summary.TotalFailed() > 0 {
		os.Exit(1)
	}
}
