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

func TestNewAnthropicService(t *testing.T) {
	apiKey := "test-api-key"
	modelName := "claude-sonnet-4-20250514"
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := NewAnthropicService(apiKey, modelName, "", log)

	if service.apiKey != apiKey {
		t.Errorf("Expected API key %s, got %s", apiKey, service.apiKey)
	}

	if service.modelName != modelName {
		t.Errorf("Expected model name %s, got %s", modelName, service.modelName)
	}

	if service.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
}

func TestAnthropicService_InitModel(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewAnthropicService("test-key", "claude-sonnet-4-20250514", "", log)

	err := service.InitModel(context.Background(), "test-model")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestAnthropicService_GenerateStructured(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotReq AnthropicChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("Expected anthropic-version header, got %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		resp := AnthropicChatResponse{
			Content: []AnthropicContentBlock{
				{Type: "tool_use", Name: structuredToolName, Input: json.RawMessage(`{"system":"d20 Fantasy"}`)},
			},
			StopReason: "tool_use",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	service := NewAnthropicService("test-key", "primary-model", "backend-model", log)
	service.baseURL = server.URL

	schema := map[string]any{"type": "object"}
	payload, err := service.GenerateStructured(context.Background(), "You design rulesets.", "space horror", schema)
	if err != nil {
		t.Fatalf("GenerateStructured failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}
	if decoded["system"] != "d20 Fantasy" {
		t.Errorf("Expected payload system field, got %v", decoded)
	}

	// The request must force the structured tool
	if gotReq.Model != "backend-model" {
		t.Errorf("Expected backend model for structured calls, got %q", gotReq.Model)
	}
	if gotReq.System != "You design rulesets." {
		t.Errorf("Expected system prompt, got %q", gotReq.System)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Name != structuredToolName {
		t.Errorf("Expected one forced tool, got %+v", gotReq.Tools)
	}
	if gotReq.ToolChoice == nil || gotReq.ToolChoice.Type != "tool" || gotReq.ToolChoice.Name != structuredToolName {
		t.Errorf("Expected tool_choice forcing %s, got %+v", structuredToolName, gotReq.ToolChoice)
	}
}

func TestAnthropicService_GenerateStructuredNoToolUse(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := AnthropicChatResponse{
			Content:    []AnthropicContentBlock{{Type: "text", Text: "I cannot do that."}},
			StopReason: "end_turn",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	service := NewAnthropicService("test-key", "primary-model", "", log)
	service.baseURL = server.URL

	_, err := service.GenerateStructured(context.Background(), "", "anything", map[string]any{"type": "object"})
	if err == nil {
		t.Fatal("Expected error when no tool_use block is returned")
	}
}

func TestAnthropicService_GenerateStructuredAPIError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	service := NewAnthropicService("test-key", "primary-model", "", log)
	service.baseURL = server.URL

	_, err := service.GenerateStructured(context.Background(), "", "anything", map[string]any{"type": "object"})
	if err == nil {
		t.Fatal("Expected error on non-200 status")
	}
}
