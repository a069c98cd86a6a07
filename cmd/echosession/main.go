package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NeethishS/Echo-Session/internal/chat"
	"github.com/NeethishS/Echo-Session/internal/config"
	"github.com/NeethishS/Echo-Session/internal/httpapi"
	"github.com/NeethishS/Echo-Session/internal/llm"
	"github.com/NeethishS/Echo-Session/internal/logger"
	"github.com/NeethishS/Echo-Session/internal/observability"
	"github.com/NeethishS/Echo-Session/internal/retrieval"
	"github.com/NeethishS/Echo-Session/internal/session"
	"github.com/NeethishS/Echo-Session/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("config error", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	transcripts, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.L.Error("transcript store init failed", "error", err)
		os.Exit(1)
	}
	defer transcripts.Close()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.L.Warn("DATABASE_URL not set; transcripts are kept in memory only")
	}

	var engine llm.Client
	var openaiClient *llm.OpenAIClient
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		openaiClient = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.LLMAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			Temperature: float32(cfg.LLMTemperature),
			MaxTokens:   cfg.LLMMaxTokens,
		})
		engine = openaiClient
		logger.L.Info("completion engine: openai-compatible", "model", cfg.LLMModel)
	} else {
		engine = llm.NewMockClient()
		logger.L.Warn("LLM_API_KEY not set; using the mock completion engine")
	}

	registry := session.NewRegistry(transcripts, metrics, cfg.SystemPrompt)
	registry.SetSummarizer(chat.NewSummarizer(transcripts, engine, metrics, cfg.SummaryTokens))
	chatRouter := chat.NewRouter(registry, transcripts, engine, chat.NewFunctionRegistry(), metrics)

	var kb *retrieval.Service
	if strings.TrimSpace(cfg.DatabaseURL) != "" && openaiClient != nil {
		repo, err := retrieval.NewPostgresRepository(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
		if err != nil {
			logger.L.Error("knowledge base init failed", "error", err)
			os.Exit(1)
		}
		embedder := retrieval.NewOpenAIEmbedder(openaiClient.API(), cfg.EmbeddingModel)
		kb = retrieval.NewService(repo, embedder, cfg.MatchThreshold, cfg.MatchCount)
		defer kb.Close()
		logger.L.Info("knowledge base enabled", "embedding_model", cfg.EmbeddingModel, "dim", cfg.EmbeddingDim)
	} else {
		logger.L.Info("knowledge base disabled (requires DATABASE_URL and LLM_API_KEY)")
	}

	api := httpapi.New(cfg, registry, chatRouter, transcripts, kb, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.L.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("listen error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.L.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.L.Info("shutdown complete")
}
