package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gmforge/sheetengine/pkg/update"
)

// handleUpdate runs one tool call through the update pipeline. The response
// is always 200 with a narrated change/error log once the session resolves;
// per-key failures are content, not transport errors.
func (h *SessionsHandler) handleUpdate(w http.ResponseWriter, r *http.Request, sessionID string) {
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

	var req update.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	resolver := update.NewResolver(h.store, h.logger).
		WithVocabulary(rs.Vocabulary).
		WithDerive(h.derive).
		WithValidator(h.validator)

	res, err := resolver.Apply(r.Context(), sessionID, req)
	if err != nil {
		h.logger.Error("Update pipeline failed", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to apply update")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}
