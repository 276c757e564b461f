package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/storage"
)

// currentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const currentSchemaVersion = 1

// SQLiteStore implements the EntityStore interface on a single SQLite file.
// Suitable for single-process deployments and the CLI.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements EntityStore interface
var _ storage.EntityStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if necessary creates) the database at path and
// applies pending migrations.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Pragmas in the connection string apply to all pool connections.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS entities (
		  session_id  TEXT NOT NULL,
		  entity_type TEXT NOT NULL,
		  entity_key  TEXT NOT NULL,
		  document    TEXT NOT NULL,
		  version     INTEGER NOT NULL DEFAULT 1,
		  updated_at  INTEGER NOT NULL,
		  PRIMARY KEY (session_id, entity_type, entity_key)
		);

		CREATE TABLE IF NOT EXISTS rulesets (
		  session_id TEXT PRIMARY KEY,
		  record     TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS property_definitions (
		  id            TEXT PRIMARY KEY,
		  session_id    TEXT NOT NULL,
		  entity_type   TEXT NOT NULL,
		  property_name TEXT NOT NULL,
		  record        TEXT NOT NULL,
		  created_at    INTEGER NOT NULL,
		  UNIQUE (session_id, entity_type, property_name)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// Health and lifecycle methods

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", "error", err)
		return err
	}
	return nil
}

// Entity operations

func (s *SQLiteStore) GetEntity(ctx context.Context, sessionID, entityType, key string) (entity.Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM entities WHERE session_id = ? AND entity_type = ? AND entity_key = ?`,
		sessionID, entityType, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Document{}, nil // Absent entities start empty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}

	var doc entity.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) SetEntity(ctx context.Context, sessionID, entityType, key string, doc entity.Document) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM entities WHERE session_id = ? AND entity_type = ? AND entity_key = ?`,
		sessionID, entityType, key).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read entity version: %w", err)
	}
	version++
	doc.Set("version", float64(version))

	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal entity: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (session_id, entity_type, entity_key, document, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, entity_type, entity_key)
		 DO UPDATE SET document = excluded.document, version = excluded.version, updated_at = excluded.updated_at`,
		sessionID, entityType, key, string(data), version, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to save entity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entity write: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, sessionID, entityType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_key FROM entities WHERE session_id = ? AND entity_type = ? ORDER BY entity_key`,
		sessionID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan entity key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM entities WHERE session_id = ?`,
		`DELETE FROM property_definitions WHERE session_id = ?`,
		`DELETE FROM rulesets WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	return tx.Commit()
}

// Ruleset operations

func (s *SQLiteStore) SaveRuleset(ctx context.Context, rs *storage.Ruleset) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal ruleset: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rulesets (session_id, record, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET record = excluded.record`,
		rs.SessionID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save ruleset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadRuleset(ctx context.Context, sessionID string) (*storage.Ruleset, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM rulesets WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Return nil for not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}

	var rs storage.Ruleset
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ruleset: %w", err)
	}
	return &rs, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM rulesets ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

// Property definition operations

func (s *SQLiteStore) SavePropertyDefinition(ctx context.Context, def *entity.PropertyDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal property definition: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM property_definitions WHERE session_id = ? AND entity_type = ? AND property_name = ?`,
		def.SessionID, def.EntityType, def.PropertyName).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check property definition: %w", err)
	}
	if count > 0 {
		return storage.ErrPropertyExists
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO property_definitions (id, session_id, entity_type, property_name, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		def.ID, def.SessionID, def.EntityType, def.PropertyName, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save property definition: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListPropertyDefinitions(ctx context.Context, sessionID, entityType string) ([]entity.PropertyDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM property_definitions WHERE session_id = ? AND entity_type = ? ORDER BY property_name`,
		sessionID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list property definitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	defs := make([]entity.PropertyDefinition, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan property definition: %w", err)
		}
		var def entity.PropertyDefinition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal property definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
