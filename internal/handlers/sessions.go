// Package handlers exposes the HTTP surface: session setup, entity reads and
// writes, the update pipeline, property definitions, and the vocabulary
// reference.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gmforge/sheetengine/internal/setup"
	"github.com/gmforge/sheetengine/pkg/derive"
	"github.com/gmforge/sheetengine/pkg/expr"
	"github.com/gmforge/sheetengine/pkg/invariant"
	"github.com/gmforge/sheetengine/pkg/storage"
)

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encode failures can only be
// logged; the status line is already out.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// SessionListResponse wraps the session ID listing.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
}

// SessionsHandler routes everything under /v1/sessions.
type SessionsHandler struct {
	store     storage.EntityStore
	setup     *setup.Service
	logger    *slog.Logger
	derive    *derive.Engine
	validator *invariant.Validator
}

// NewSessionsHandler wires the handler over the store and setup service.
func NewSessionsHandler(store storage.EntityStore, setupSvc *setup.Service, logger *slog.Logger) (*SessionsHandler, error) {
	eval, err := expr.New()
	if err != nil {
		return nil, fmt.Errorf("creating expression evaluator: %w", err)
	}
	return &SessionsHandler{
		store:     store,
		setup:     setupSvc,
		logger:    logger,
		derive:    derive.NewEngine(eval, logger),
		validator: invariant.NewValidator(eval, logger),
	}, nil
}

// ServeHTTP handles HTTP requests for sessions and their nested resources.
// Routes:
//
//	POST   /v1/sessions                              - Create a session
//	GET    /v1/sessions                              - List session IDs
//	GET    /v1/sessions/{id}                         - Read the session ruleset
//	DELETE /v1/sessions/{id}                         - Tear down a session
//	POST   /v1/sessions/{id}/update                  - Apply an entity update
//	GET    /v1/sessions/{id}/entities/{type}         - List entity keys
//	GET    /v1/sessions/{id}/entities/{type}/{key}   - Read an entity
//	PUT    /v1/sessions/{id}/entities/{type}/{key}   - Write a raw entity
//	POST   /v1/sessions/{id}/properties              - Define a property
//	GET    /v1/sessions/{id}/properties/{type}       - List property definitions
//	GET    /v1/sessions/{id}/vocabulary              - Vocabulary reference
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST, GET")
		}
		return
	}

	segments := strings.Split(rest, "/")
	id, err := uuid.Parse(segments[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", segments[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}
	sessionID := id.String()

	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, sessionID)
		case http.MethodDelete:
			h.handleDelete(w, r, sessionID)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
	case segments[1] == "update" && len(segments) == 2:
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleUpdate(w, r, sessionID)
	case segments[1] == "entities":
		h.routeEntities(w, r, sessionID, segments[2:])
	case segments[1] == "properties":
		h.routeProperties(w, r, sessionID, segments[2:])
	case segments[1] == "vocabulary" && len(segments) == 2:
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
			return
		}
		h.handleVocabulary(w, r, sessionID)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Creating new session")

	var req setup.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	// Session IDs are server-issued.
	req.SessionID = ""
	req.Vocabulary = nil

	rs, err := h.setup.CreateSession(r.Context(), req)
	if err != nil {
		h.logger.Error("Failed to create session", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.logger.Debug("Session created", "session_id", rs.SessionID, "system", rs.System)
	writeJSON(w, h.logger, http.StatusCreated, rs)
}

func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, SessionListResponse{Sessions: ids})
}

func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request, sessionID string) {
	rs, err := h.store.LoadRuleset(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if rs == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, rs)
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		h.logger.Error("Failed to delete session", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	h.logger.Debug("Session deleted", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}
