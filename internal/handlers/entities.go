package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gmforge/sheetengine/pkg/entity"
)

// EntityListResponse wraps the entity key listing for one type.
type EntityListResponse struct {
	EntityType string   `json:"entity_type"`
	Keys       []string `json:"keys"`
}

func (h *SessionsHandler) routeEntities(w http.ResponseWriter, r *http.Request, sessionID string, segments []string) {
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Entity type is required")
		return
	}
	entityType := segments[0]
	if !entity.ValidType(entityType) {
		writeError(w, h.logger, http.StatusBadRequest, "Unknown entity type: "+entityType)
		return
	}

	switch {
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
			return
		}
		h.handleListEntities(w, r, sessionID, entityType)
	case len(segments) == 2:
		switch r.Method {
		case http.MethodGet:
			h.handleGetEntity(w, r, sessionID, entityType, segments[1])
		case http.MethodPut:
			h.handlePutEntity(w, r, sessionID, entityType, segments[1])
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, PUT")
		}
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) handleListEntities(w http.ResponseWriter, r *http.Request, sessionID, entityType string) {
	keys, err := h.store.ListEntities(r.Context(), sessionID, entityType)
	if err != nil {
		h.logger.Error("Failed to list entities", "error", err, "session_id", sessionID, "entity_type", entityType)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list entities")
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, EntityListResponse{EntityType: entityType, Keys: keys})
}

func (h *SessionsHandler) handleGetEntity(w http.ResponseWriter, r *http.Request, sessionID, entityType, key string) {
	doc, err := h.store.GetEntity(r.Context(), sessionID, entityType, key)
	if err != nil {
		h.logger.Error("Failed to load entity", "error", err, "session_id", sessionID, "entity_type", entityType, "key", key)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load entity")
		return
	}
	if len(doc) == 0 {
		writeError(w, h.logger, http.StatusNotFound, "Entity not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, doc)
}

// handlePutEntity writes a raw document, bypassing the update pipeline. Meant
// for imports and test seeding; play-time mutations go through /update.
func (h *SessionsHandler) handlePutEntity(w http.ResponseWriter, r *http.Request, sessionID, entityType, key string) {
	var doc entity.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	version, err := h.store.SetEntity(r.Context(), sessionID, entityType, key, doc)
	if err != nil {
		h.logger.Error("Failed to save entity", "error", err, "session_id", sessionID, "entity_type", entityType, "key", key)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save entity")
		return
	}

	h.logger.Debug("Entity written", "session_id", sessionID, "entity_type", entityType, "key", key, "version", version)
	writeJSON(w, h.logger, http.StatusOK, doc)
}
