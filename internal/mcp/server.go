// Package mcp exposes the engine to MCP clients over stdio: entity updates,
// entity reads, property definitions, dice checks, and the vocabulary
// reference, all scoped to a session.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gmforge/sheetengine/pkg/derive"
	"github.com/gmforge/sheetengine/pkg/expr"
	"github.com/gmforge/sheetengine/pkg/invariant"
	"github.com/gmforge/sheetengine/pkg/storage"
)

type Server struct {
	store     storage.EntityStore
	logger    *slog.Logger
	derive    *derive.Engine
	validator *invariant.Validator
	mcp       *sdk.Server
}

func NewServer(store storage.EntityStore, logger *slog.Logger, version string) (*Server, error) {
	eval, err := expr.New()
	if err != nil {
		return nil, fmt.Errorf("creating expression evaluator: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     store,
		logger:    logger,
		derive:    derive.NewEngine(eval, logger),
		validator: invariant.NewValidator(eval, logger),
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "sheetengine",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
