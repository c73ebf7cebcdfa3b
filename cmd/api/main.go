package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jiwon-platform/chatmemory/internal/api"
	"github.com/jiwon-platform/chatmemory/internal/config"
	"github.com/jiwon-platform/chatmemory/internal/conversation"
	"github.com/jiwon-platform/chatmemory/internal/database"
	"github.com/jiwon-platform/chatmemory/internal/embedding"
	"github.com/jiwon-platform/chatmemory/internal/metrics"
	inats "github.com/jiwon-platform/chatmemory/internal/nats"
	iredis "github.com/jiwon-platform/chatmemory/internal/redis"
	"github.com/jiwon-platform/chatmemory/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("migrating database", "error", err)
		os.Exit(1)
	}

	// Vector capability, decided once for the process lifetime
	detector := database.NewCapabilityDetector(pool, cfg.DB.ProbeTimeout)
	backend, err := conversation.SelectBackend(ctx, pool, detector.Detect(ctx), cfg.Embedding.Dimension)
	if err != nil {
		slog.Error("preparing vector storage", "error", err)
		os.Exit(1)
	}
	if backend.Name() == "native" {
		metrics.NativeVectorBackend.Set(1)
	}
	slog.Info("vector backend selected", "backend", backend.Name(), "dimension", cfg.Embedding.Dimension)

	embedder, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		slog.Error("creating embedding provider", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var natsClient *inats.Client
	var events conversation.EventPublisher
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		events = inats.NewPublisher(natsClient.JetStream())
	}

	// Conversations
	repo := conversation.NewPostgresRepository(pool, backend)
	svc := conversation.NewService(repo, embedder, conversation.NewShortTermStore(redisClient), events, conversation.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		CandidateCap: cfg.Search.CandidateCap,
		QueryTimeout: cfg.Search.QueryTimeout,
		StoreTimeout: cfg.DB.StoreTimeout,
		HistoryMax:   cfg.History.MaxMessages,
		HistoryTTL:   cfg.History.TTL,
	})
	handler := conversation.NewHandler(svc)

	if natsClient != nil {
		consumer := conversation.NewConsumer(svc, natsClient)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("conversation consumer stopped", "error", err)
			}
		}()
	}

	checks := api.HealthChecks{
		Database: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
		Redis: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		VectorBackend: backend.Name(),
	}
	if natsClient != nil {
		checks.NATS = natsClient.Healthy
	}

	router := api.NewRouter(checks, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}, api.HandlerSet{
		SearchMessages: handler.Search,
		RecordMessage:  handler.Record,
		SessionHistory: handler.History,
		RecentMessages: handler.Recent,
		ClearSession:   handler.ClearSession,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "bedrock":
		return embedding.NewBedrockProvider(ctx, cfg.Region, cfg.ModelID, cfg.Dimension, cfg.Timeout)
	case "http":
		return embedding.NewHTTPProvider(cfg.Endpoint, cfg.ModelID, cfg.Dimension, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
