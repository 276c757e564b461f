package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaService_GenerateStructured(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected /api/chat, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		resp := map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"identity":{"name":"Elara"}}`,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, "llama3", log)

	schema := map[string]any{"type": "object"}
	payload, err := service.GenerateStructured(context.Background(), "You fill character sheets.", "a rogue", schema)
	if err != nil {
		t.Fatalf("GenerateStructured failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}

	// The schema rides along as the response format
	if _, ok := gotReq["format"]; !ok {
		t.Error("Expected format field carrying the schema")
	}
	if gotReq["stream"] != false {
		t.Errorf("Expected stream false, got %v", gotReq["stream"])
	}
	msgs, ok := gotReq["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Errorf("Expected system + user messages, got %v", gotReq["messages"])
	}
}

func TestOllamaService_GenerateStructuredInvalidJSON(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"message": map[string]any{"content": "Sure! Here is your character: Elara the rogue."},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, "llama3", log)

	_, err := service.GenerateStructured(context.Background(), "", "a rogue", map[string]any{"type": "object"})
	if err == nil {
		t.Fatal("Expected error for prose response")
	}
}

func TestOllamaService_GenerateStructuredServerError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, "llama3", log)

	_, err := service.GenerateStructured(context.Background(), "", "a rogue", map[string]any{"type": "object"})
	if err == nil {
		t.Fatal("Expected error on non-200 status")
	}
}
