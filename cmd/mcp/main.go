package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gmforge/sheetengine/internal/config"
	"github.com/gmforge/sheetengine/internal/logger"
	"github.com/gmforge/sheetengine/internal/mcp"
	backend "github.com/gmforge/sheetengine/internal/storage"
	"github.com/gmforge/sheetengine/pkg/storage"
)

// version is stamped by the build.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Stdout carries the MCP protocol; logs go to stderr.
	log := logger.SetupWriter(cfg, os.Stderr)

	log.Info("Starting Sheet Engine MCP server",
		"version", version,
		"storage_backend", cfg.StorageBackend)

	store, err := newStore(cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer pingCancel()
	if err := store.Ping(pingCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	server, err := mcp.NewServer(store, log, version)
	if err != nil {
		log.Error("Failed to create MCP server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, &sdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error("MCP server exited", "error", err)
		os.Exit(1)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}
	log.Info("MCP server stopped")
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
