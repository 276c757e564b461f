package services

import (
	"context"
	"encoding/json"
)

// LLMService defines the interface for interacting with the LLM API.
// The engine only ever asks for structured output: ruleset design and
// character population both go through GenerateStructured.
type LLMService interface {
	// InitModel initializes the LLM model on startup
	InitModel(ctx context.Context, modelName string) error

	// GenerateStructured prompts for a JSON document conforming to schema
	// (a draft-07 JSON Schema object) and returns the raw JSON. Responses
	// that carry no parseable JSON are errors; callers degrade to their
	// defaults rather than failing the session.
	GenerateStructured(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error)
}
