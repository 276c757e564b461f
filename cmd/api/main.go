package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gmforge/sheetengine/internal/config"
	"github.com/gmforge/sheetengine/internal/handlers"
	"github.com/gmforge/sheetengine/internal/logger"
	"github.com/gmforge/sheetengine/internal/middleware"
	"github.com/gmforge/sheetengine/internal/services"
	"github.com/gmforge/sheetengine/internal/setup"
	backend "github.com/gmforge/sheetengine/internal/storage"
	"github.com/gmforge/sheetengine/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Sheet Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName)

	var llmService services.LLMService
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Error("Anthropic API key is required when using anthropic provider")
			os.Exit(1)
		}
		llmService = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, cfg.BackendModelName, log)
		log.Info("Using Anthropic LLM provider")
	case "ollama":
		llmService = services.NewOllamaService(cfg.OllamaURL, cfg.ModelName, log)
		log.Info("Using Ollama LLM provider", "url", cfg.OllamaURL)
	case "mock":
		llmService = services.NewMockLLMService()
		log.Warn("Using mock LLM provider; new sessions fall back to the default ruleset")
	default:
		log.Error("Invalid LLM provider specified", "provider", cfg.LLMProvider, "supported", []string{"anthropic", "ollama", "mock"})
		os.Exit(1)
	}

	store, err := newStore(cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	// Initialize the model on startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := llmService.InitModel(ctx, cfg.ModelName); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	setupService, err := setup.NewService(store, llmService, log)
	if err != nil {
		log.Error("Failed to create setup service", "error", err)
		os.Exit(1)
	}
	setupService.WithDataDir(cfg.DataDir)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, log)
	mux.Handle("/health", healthHandler)

	sessionsHandler, err := handlers.NewSessionsHandler(store, setupService, log)
	if err != nil {
		log.Error("Failed to create sessions handler", "error", err)
		os.Exit(1)
	}
	mux.Handle("/v1/sessions", sessionsHandler)
	mux.Handle("/v1/sessions/", sessionsHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

// newStore selects the storage backend from configuration.
func newStore(cfg *config.Config, log *slog.Logger) (storage.EntityStore, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "redis":
		return backend.NewRedisStore(cfg.RedisURL, log), nil
	case "sqlite":
		return backend.NewSQLiteStore(cfg.SQLitePath, log)
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required when using postgres backend")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return backend.NewPostgresStore(ctx, cfg.PostgresURL, log)
	default:
		return nil, fmt.Errorf("invalid storage backend %q (supported: redis, sqlite, postgres)", cfg.StorageBackend)
	}
}
