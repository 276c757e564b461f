package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/gmforge/sheetengine/pkg/vocab"
)

// handleVocabulary serves the session's vocabulary, as JSON by default or as
// a rendered HTML reference for ?format=html / Accept: text/html.
func (h *SessionsHandler) handleVocabulary(w http.ResponseWriter, r *http.Request, sessionID string) {
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
	if rs.Vocabulary == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session has no vocabulary")
		return
	}

	if !wantsHTML(r) {
		writeJSON(w, h.logger, http.StatusOK, rs.Vocabulary)
		return
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(vocabMarkdown(rs.Vocabulary)), &buf); err != nil {
		h.logger.Error("Failed to render vocabulary reference", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to render vocabulary")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("Failed to write vocabulary reference", "error", err)
	}
}

func wantsHTML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// vocabMarkdown renders the vocabulary as a markdown reference: one section
// per category listing its fields, then invariants, derived stats, and
// vitals.
func vocabMarkdown(v *vocab.Vocabulary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", v.System)

	groups := make(map[string][]vocab.FieldDef)
	var order []string
	for _, f := range v.Fields {
		cat := f.Path
		if i := strings.IndexByte(cat, '.'); i >= 0 {
			cat = cat[:i]
		}
		if _, seen := groups[cat]; !seen {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], f)
	}

	for _, cat := range order {
		fmt.Fprintf(&b, "## %s\n\n", cat)
		for _, f := range groups[cat] {
			fmt.Fprintf(&b, "- `%s` (%s, %s)", f.Path, f.Type, f.Role)
			if r := rangeCell(f.MinValue, f.MaxValue); r != "" {
				fmt.Fprintf(&b, ", %s", r)
			}
			if f.Description != "" {
				fmt.Fprintf(&b, ": %s", f.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(v.Invariants) > 0 {
		b.WriteString("## Invariants\n\n")
		for _, inv := range v.Invariants {
			fmt.Fprintf(&b, "- **%s** (`%s`, %s): `%s`\n", inv.Name, inv.Path, inv.Policy, inv.Rule)
		}
		b.WriteString("\n")
	}
	if len(v.Derived) > 0 {
		b.WriteString("## Derived stats\n\n")
		for _, d := range v.Derived {
			fmt.Fprintf(&b, "- `%s` = `%s`\n", d.Path, d.Formula)
		}
		b.WriteString("\n")
	}
	if len(v.Vitals) > 0 {
		b.WriteString("## Vitals\n\n")
		for _, vt := range v.Vitals {
			fmt.Fprintf(&b, "- `%s` max = `%s`\n", vt.Path, vt.MaxFormula)
		}
	}
	return b.String()
}

func rangeCell(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%v to %v", *min, *max)
	case min != nil:
		return fmt.Sprintf(">= %v", *min)
	case max != nil:
		return fmt.Sprintf("<= %v", *max)
	}
	return ""
}
