package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/storage"
)

// PostgresStore implements the EntityStore interface on a Postgres pool.
// Documents are JSONB rows keyed by (session, type, key).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Ensure PostgresStore implements EntityStore interface
var _ storage.EntityStore = (*PostgresStore)(nil)

// NewPostgresStore connects, pings, and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
	  session_id  TEXT NOT NULL,
	  entity_type TEXT NOT NULL,
	  entity_key  TEXT NOT NULL,
	  document    JSONB NOT NULL,
	  version     BIGINT NOT NULL DEFAULT 1,
	  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	  PRIMARY KEY (session_id, entity_type, entity_key)
	);

	CREATE TABLE IF NOT EXISTS rulesets (
	  session_id TEXT PRIMARY KEY,
	  record     JSONB NOT NULL,
	  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS property_definitions (
	  id            TEXT PRIMARY KEY,
	  session_id    TEXT NOT NULL,
	  entity_type   TEXT NOT NULL,
	  property_name TEXT NOT NULL,
	  record        JSONB NOT NULL,
	  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	  UNIQUE (session_id, entity_type, property_name)
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring postgres schema: %w", err)
	}
	return nil
}

// Health and lifecycle methods

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Entity operations

func (s *PostgresStore) GetEntity(ctx context.Context, sessionID, entityType, key string) (entity.Document, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM entities WHERE session_id = $1 AND entity_type = $2 AND entity_key = $3`,
		sessionID, entityType, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Document{}, nil // Absent entities start empty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}

	var doc entity.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) SetEntity(ctx context.Context, sessionID, entityType, key string, doc entity.Document) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM entities WHERE session_id = $1 AND entity_type = $2 AND entity_key = $3 FOR UPDATE`,
		sessionID, entityType, key).Scan(&version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to read entity version: %w", err)
	}
	version++
	doc.Set("version", float64(version))

	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal entity: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO entities (session_id, entity_type, entity_key, document, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (session_id, entity_type, entity_key)
		 DO UPDATE SET document = EXCLUDED.document, version = EXCLUDED.version, updated_at = now()`,
		sessionID, entityType, key, data, version)
	if err != nil {
		return 0, fmt.Errorf("failed to save entity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit entity write: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, sessionID, entityType string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_key FROM entities WHERE session_id = $1 AND entity_type = $2 ORDER BY entity_key`,
		sessionID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range []string{
		`DELETE FROM entities WHERE session_id = $1`,
		`DELETE FROM property_definitions WHERE session_id = $1`,
		`DELETE FROM rulesets WHERE session_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Ruleset operations

func (s *PostgresStore) SaveRuleset(ctx context.Context, rs *storage.Ruleset) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal ruleset: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rulesets (session_id, record) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET record = EXCLUDED.record`,
		rs.SessionID, data)
	if err != nil {
		return fmt.Errorf("failed to save ruleset: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadRuleset(ctx context.Context, sessionID string) (*storage.Ruleset, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM rulesets WHERE session_id = $1`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // Return nil for not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}

	var rs storage.Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ruleset: %w", err)
	}
	return &rs, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT session_id FROM rulesets ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) SavePropertyDefinition(ctx context.Context, def *entity.PropertyDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal property definition: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO property_definitions (id, session_id, entity_type, property_name, record)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, entity_type, property_name) DO NOTHING`,
		def.ID, def.SessionID, def.EntityType, def.PropertyName, data)
	if err != nil {
		return fmt.Errorf("failed to save property definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPropertyExists
	}
	return nil
}

func (s *PostgresStore) ListPropertyDefinitions(ctx context.Context, sessionID, entityType string) ([]entity.PropertyDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM property_definitions WHERE session_id = $1 AND entity_type = $2 ORDER BY property_name`,
		sessionID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list property definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]entity.PropertyDefinition, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan property definition: %w", err)
		}
		var def entity.PropertyDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal property definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
