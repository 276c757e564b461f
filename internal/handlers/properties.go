package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/storage"
)

// DefinePropertyRequest declares one ad hoc property for an entity type.
type DefinePropertyRequest struct {
	EntityType string   `json:"entity_type,omitempty"` // defaults to character
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Default    any      `json:"default,omitempty"`
	MinValue   *float64 `json:"min_value,omitempty"`
	MaxValue   *float64 `json:"max_value,omitempty"`
	Label      string   `json:"label,omitempty"`
	Regen      string   `json:"regen,omitempty"`
}

// PropertyListResponse wraps the definitions for one entity type.
type PropertyListResponse struct {
	EntityType  string                      `json:"entity_type"`
	Definitions []entity.PropertyDefinition `json:"definitions"`
}

func (h *SessionsHandler) routeProperties(w http.ResponseWriter, r *http.Request, sessionID string, segments []string) {
	switch {
	case len(segments) == 0 || segments[0] == "":
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleDefineProperty(w, r, sessionID)
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
			return
		}
		if !entity.ValidType(segments[0]) {
			writeError(w, h.logger, http.StatusBadRequest, "Unknown entity type: "+segments[0])
			return
		}
		h.handleListProperties(w, r, sessionID, segments[0])
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) handleDefineProperty(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req DefinePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.EntityType == "" {
		req.EntityType = entity.TypeCharacter
	}

	def, err := entity.NewPropertyDefinition(sessionID, req.EntityType, req.Name, req.Type)
	if err != nil {
		h.logger.Warn("Invalid property definition", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	def.Default = req.Default
	def.MinValue = req.MinValue
	def.MaxValue = req.MaxValue
	def.Label = req.Label
	def.Regen = req.Regen

	if err := h.store.SavePropertyDefinition(r.Context(), def); err != nil {
		if errors.Is(err, storage.ErrPropertyExists) {
			writeError(w, h.logger, http.StatusConflict,
				"Property '"+def.PropertyName+"' is already defined for "+def.EntityType)
			return
		}
		h.logger.Error("Failed to save property definition", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save property definition")
		return
	}

	seeded := h.seedProperty(r.Context(), def)
	h.logger.Debug("Property defined",
		"session_id", sessionID,
		"entity_type", def.EntityType,
		"property", def.PropertyName,
		"seeded", seeded)
	writeJSON(w, h.logger, http.StatusCreated, def)
}

// seedProperty applies the new slot's default onto entities that already
// exist. Best effort: failures are logged and skipped.
func (h *SessionsHandler) seedProperty(ctx context.Context, def *entity.PropertyDefinition) int {
	keys, err := h.store.ListEntities(ctx, def.SessionID, def.EntityType)
	if err != nil {
		h.logger.Warn("Failed to list entities for property seeding", "error", err)
		return 0
	}

	seeded := 0
	for _, key := range keys {
		doc, err := h.store.GetEntity(ctx, def.SessionID, def.EntityType, key)
		if err != nil || len(doc) == 0 {
			continue
		}
		if !def.ApplyTo(doc) {
			continue
		}
		if _, err := h.store.SetEntity(ctx, def.SessionID, def.EntityType, key, doc); err != nil {
			h.logger.Warn("Failed to seed property", "error", err, "key", key)
			continue
		}
		seeded++
	}
	return seeded
}

func (h *SessionsHandler) handleListProperties(w http.ResponseWriter, r *http.Request, sessionID, entityType string) {
	defs, err := h.store.ListPropertyDefinitions(r.Context(), sessionID, entityType)
	if err != nil {
		h.logger.Error("Failed to list property definitions", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list property definitions")
		return
	}
	if defs == nil {
		defs = []entity.PropertyDefinition{}
	}
	writeJSON(w, h.logger, http.StatusOK, PropertyListResponse{EntityType: entityType, Definitions: defs})
}
