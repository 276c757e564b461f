package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/storage"
)

func setupTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSQLiteStore_Migration(t *testing.T) {
	store := setupTestSQLite(t)

	version, err := getUserVersion(store.db)
	if err != nil {
		t.Fatalf("getUserVersion failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSQLiteStore_EntityLifecycle(t *testing.T) {
	store := setupTestSQLite(t)
	ctx := context.Background()
	session := "11111111-1111-1111-1111-111111111111"

	// Absent entities come back empty, not as errors
	doc, err := store.GetEntity(ctx, session, entity.TypeCharacter, "elara")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("Expected empty document, got %v", doc)
	}

	doc = entity.Document{"resources": map[string]any{"hp": map[string]any{"current": float64(10), "max": float64(20)}}}
	version, err := store.SetEntity(ctx, session, entity.TypeCharacter, "elara", doc)
	if err != nil {
		t.Fatalf("SetEntity failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}

	version, err = store.SetEntity(ctx, session, entity.TypeCharacter, "elara", doc)
	if err != nil {
		t.Fatalf("SetEntity failed: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected version 2, got %d", version)
	}

	loaded, err := store.GetEntity(ctx, session, entity.TypeCharacter, "elara")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	current, ok := loaded.Number("resources.hp.current")
	if !ok || current != 10 {
		t.Errorf("Expected hp.current 10, got %v (ok=%v)", current, ok)
	}
	if loaded.Version() != 2 {
		t.Errorf("Expected stored version 2, got %d", loaded.Version())
	}

	_, err = store.SetEntity(ctx, session, entity.TypeCharacter, "brin", entity.Document{})
	if err != nil {
		t.Fatalf("SetEntity failed: %v", err)
	}
	keys, err := store.ListEntities(ctx, session, entity.TypeCharacter)
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "brin" || keys[1] != "elara" {
		t.Errorf("Expected [brin elara], got %v", keys)
	}
}

func TestSQLiteStore_Rulesets(t *testing.T) {
	store := setupTestSQLite(t)
	ctx := context.Background()
	session := "22222222-2222-2222-2222-222222222222"

	rs, err := store.LoadRuleset(ctx, session)
	if err != nil {
		t.Fatalf("LoadRuleset failed: %v", err)
	}
	if rs != nil {
		t.Errorf("Expected nil ruleset for unknown session, got %v", rs)
	}

	if err := store.SaveRuleset(ctx, &storage.Ruleset{
		SessionID: session,
		System:    "Mothership",
		Status:    storage.StatusPreparing,
	}); err != nil {
		t.Fatalf("SaveRuleset failed: %v", err)
	}

	// Saving again overwrites (status flips to ready after population)
	if err := store.SaveRuleset(ctx, &storage.Ruleset{
		SessionID: session,
		System:    "Mothership",
		Status:    storage.StatusReady,
	}); err != nil {
		t.Fatalf("SaveRuleset failed: %v", err)
	}

	rs, err = store.LoadRuleset(ctx, session)
	if err != nil {
		t.Fatalf("LoadRuleset failed: %v", err)
	}
	if rs == nil || rs.Status != storage.StatusReady {
		t.Fatalf("Expected ready ruleset, got %v", rs)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0] != session {
		t.Errorf("Expected [%s], got %v", session, sessions)
	}
}

func TestSQLiteStore_PropertyDefinitions(t *testing.T) {
	store := setupTestSQLite(t)
	ctx := context.Background()
	session := "33333333-3333-3333-3333-333333333333"

	def, err := entity.NewPropertyDefinition(session, entity.TypeCharacter, "Morale", entity.PropertyNumber)
	if err != nil {
		t.Fatalf("NewPropertyDefinition failed: %v", err)
	}
	if err := store.SavePropertyDefinition(ctx, def); err != nil {
		t.Fatalf("SavePropertyDefinition failed: %v", err)
	}

	dup, err := entity.NewPropertyDefinition(session, entity.TypeCharacter, "morale", entity.PropertyNumber)
	if err != nil {
		t.Fatalf("NewPropertyDefinition failed: %v", err)
	}
	if err := store.SavePropertyDefinition(ctx, dup); !errors.Is(err, storage.ErrPropertyExists) {
		t.Errorf("Expected ErrPropertyExists, got %v", err)
	}

	defs, err := store.ListPropertyDefinitions(ctx, session, entity.TypeCharacter)
	if err != nil {
		t.Fatalf("ListPropertyDefinitions failed: %v", err)
	}
	if len(defs) != 1 || defs[0].PropertyName != "morale" {
		t.Errorf("Expected one definition named morale, got %v", defs)
	}

	// Different entity type is a different namespace
	itemDef, err := entity.NewPropertyDefinition(session, entity.TypeItem, "morale", entity.PropertyNumber)
	if err != nil {
		t.Fatalf("NewPropertyDefinition failed: %v", err)
	}
	if err := store.SavePropertyDefinition(ctx, itemDef); err != nil {
		t.Errorf("Expected item-scoped definition to save, got %v", err)
	}
}

func TestSQLiteStore_DeleteSession(t *testing.T) {
	store := setupTestSQLite(t)
	ctx := context.Background()
	session := "44444444-4444-4444-4444-444444444444"
	other := "55555555-5555-5555-5555-555555555555"

	if _, err := store.SetEntity(ctx, session, entity.TypeCharacter, "elara", entity.Document{}); err != nil {
		t.Fatalf("SetEntity failed: %v", err)
	}
	if _, err := store.SetEntity(ctx, other, entity.TypeCharacter, "brin", entity.Document{}); err != nil {
		t.Fatalf("SetEntity failed: %v", err)
	}
	if err := store.SaveRuleset(ctx, &storage.Ruleset{SessionID: session, System: "test"}); err != nil {
		t.Fatalf("SaveRuleset failed: %v", err)
	}

	if err := store.DeleteSession(ctx, session); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	keys, err := store.ListEntities(ctx, session, entity.TypeCharacter)
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no entities after delete, got %v", keys)
	}

	keys, err = store.ListEntities(ctx, other, entity.TypeCharacter)
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Expected other session intact, got %v", keys)
	}
}
