package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gmforge/sheetengine/pkg/entity"
)

// MockStore is an in-memory EntityStore for tests.
type MockStore struct {
	mu         sync.RWMutex
	entities   map[string]entity.Document
	rulesets   map[string]*Ruleset
	properties map[string]*entity.PropertyDefinition
	pingError  error
	saveError  error
	loadError  error
}

// Ensure MockStore implements EntityStore
var _ EntityStore = (*MockStore)(nil)

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		entities:   make(map[string]entity.Document),
		rulesets:   make(map[string]*Ruleset),
		properties: make(map[string]*entity.PropertyDefinition),
	}
}

// SetPingError configures the mock to fail health checks.
func (m *MockStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail writes.
func (m *MockStore) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// SetLoadError configures the mock to fail reads.
func (m *MockStore) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

// Ping mocks the health check.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

func entityKey(sessionID, entityType, key string) string {
	return sessionID + "/" + entityType + "/" + key
}

// GetEntity returns a copy of the stored document, or an empty document when
// the entity does not exist.
func (m *MockStore) GetEntity(ctx context.Context, sessionID, entityType, key string) (entity.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	doc, ok := m.entities[entityKey(sessionID, entityType, key)]
	if !ok {
		return entity.Document{}, nil
	}
	return doc.Clone(), nil
}

// SetEntity stores a copy of the document with an incremented version.
func (m *MockStore) SetEntity(ctx context.Context, sessionID, entityType, key string, doc entity.Document) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return 0, m.saveError
	}
	k := entityKey(sessionID, entityType, key)
	version := int64(1)
	if existing, ok := m.entities[k]; ok {
		version = existing.Version() + 1
	}
	stored := doc.Clone()
	stored.Set("version", float64(version))
	m.entities[k] = stored
	doc.Set("version", float64(version))
	return version, nil
}

// ListEntities returns the sorted keys of one entity type in a session.
func (m *MockStore) ListEntities(ctx context.Context, sessionID, entityType string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	prefix := sessionID + "/" + entityType + "/"
	var keys []string
	for k := range m.entities {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteSession drops every record belonging to the session.
func (m *MockStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	prefix := sessionID + "/"
	for k := range m.entities {
		if strings.HasPrefix(k, prefix) {
			delete(m.entities, k)
		}
	}
	delete(m.rulesets, sessionID)
	for k := range m.properties {
		if strings.HasPrefix(k, prefix) {
			delete(m.properties, k)
		}
	}
	return nil
}

// SaveRuleset stores or replaces the session's ruleset record.
func (m *MockStore) SaveRuleset(ctx context.Context, rs *Ruleset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.rulesets[rs.SessionID] = rs
	return nil
}

// LoadRuleset returns the session's ruleset, or (nil, nil) when absent.
func (m *MockStore) LoadRuleset(ctx context.Context, sessionID string) (*Ruleset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	rs, ok := m.rulesets[sessionID]
	if !ok {
		return nil, nil
	}
	return rs, nil
}

// ListSessions returns the sorted session IDs with rulesets.
func (m *MockStore) ListSessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	var ids []string
	for id := range m.rulesets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SavePropertyDefinition appends a definition, rejecting duplicates.
func (m *MockStore) SavePropertyDefinition(ctx context.Context, def *entity.PropertyDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	k := def.SessionID + "/" + def.EntityType + "/" + def.PropertyName
	if _, exists := m.properties[k]; exists {
		return ErrPropertyExists
	}
	m.properties[k] = def
	return nil
}

// ListPropertyDefinitions returns the session's definitions for one entity
// type, sorted by name.
func (m *MockStore) ListPropertyDefinitions(ctx context.Context, sessionID, entityType string) ([]entity.PropertyDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	prefix := sessionID + "/" + entityType + "/"
	var defs []entity.PropertyDefinition
	for k, def := range m.properties {
		if strings.HasPrefix(k, prefix) {
			defs = append(defs, *def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].PropertyName < defs[j].PropertyName })
	return defs, nil
}
