package services

import (
	"context"
	"encoding/json"
	"sync"
)

// MockLLMService is a mock implementation of LLMService for testing
type MockLLMService struct {
	InitModelFunc          func(ctx context.Context, modelName string) error
	GenerateStructuredFunc func(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error)

	// Track calls for testing
	InitModelCalls          []string
	GenerateStructuredCalls []GenerateStructuredCall

	mu sync.Mutex // protects all fields above
}

type GenerateStructuredCall struct {
	System string
	User   string
	Schema map[string]any
}

// NewMockLLMService creates a new mock LLM service
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{
		InitModelCalls:          make([]string, 0),
		GenerateStructuredCalls: make([]GenerateStructuredCall, 0),
	}
}

// Ensure MockLLMService implements LLMService interface
var _ LLMService = (*MockLLMService)(nil)

// InitModel mocks model initialization
func (m *MockLLMService) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InitModelCalls = append(m.InitModelCalls, modelName)

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}

	// Default behavior - success
	return nil
}

// GenerateStructured mocks structured generation
func (m *MockLLMService) GenerateStructured(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerateStructuredCalls = append(m.GenerateStructuredCalls, GenerateStructuredCall{
		System: system,
		User:   user,
		Schema: schema,
	})

	if m.GenerateStructuredFunc != nil {
		return m.GenerateStructuredFunc(ctx, system, user, schema)
	}

	// Default behavior - empty document
	return json.RawMessage(`{}`), nil
}

// Reset clears all call tracking
func (m *MockLLMService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = make([]string, 0)
	m.GenerateStructuredCalls = make([]GenerateStructuredCall, 0)
}

// SetInitModelError sets up the mock to return an error on InitModel
func (m *MockLLMService) SetInitModelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelFunc = func(ctx context.Context, modelName string) error {
		return err
	}
}

// SetGenerateStructuredError sets up the mock to return an error on GenerateStructured
func (m *MockLLMService) SetGenerateStructuredError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateStructuredFunc = func(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error) {
		return nil, err
	}
}

// SetStructuredResponse sets up the mock to return a canned payload
func (m *MockLLMService) SetStructuredResponse(payload json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateStructuredFunc = func(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error) {
		return payload, nil
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMService) GetCalls() ([]string, []GenerateStructuredCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	initCalls := make([]string, len(m.InitModelCalls))
	copy(initCalls, m.InitModelCalls)

	genCalls := make([]GenerateStructuredCall, len(m.GenerateStructuredCalls))
	copy(genCalls, m.GenerateStructuredCalls)

	return initCalls, genCalls
}
