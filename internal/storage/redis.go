package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/storage"
)

// RedisStore implements the EntityStore interface using Redis. Entity
// documents are JSON values under entity:{session}:{type}:{key}; rulesets
// and property definitions get their own prefixes.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStore implements EntityStore interface
var _ storage.EntityStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store instance
func NewRedisStore(redisURL string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	return &RedisStore{
		client: rdb,
		logger: logger,
	}
}

func entityKey(sessionID, entityType, key string) string {
	return fmt.Sprintf("entity:%s:%s:%s", sessionID, entityType, key)
}

func rulesetKey(sessionID string) string {
	return "ruleset:" + sessionID
}

func propDefKey(sessionID, entityType, name string) string {
	return fmt.Sprintf("propdef:%s:%s:%s", sessionID, entityType, name)
}

// Health and lifecycle methods

func (r *RedisStore) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Entity operations

func (r *RedisStore) GetEntity(ctx context.Context, sessionID, entityType, key string) (entity.Document, error) {
	cmd := r.client.Get(ctx, entityKey(sessionID, entityType, key))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return entity.Document{}, nil // Absent entities start empty
		}
		r.logger.Error("Failed to load entity", "session_id", sessionID, "key", key, "error", err)
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}

	var doc entity.Document
	if err := json.Unmarshal([]byte(cmd.Val()), &doc); err != nil {
		r.logger.Error("Failed to unmarshal entity", "session_id", sessionID, "key", key, "error", err)
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	return doc, nil
}

func (r *RedisStore) SetEntity(ctx context.Context, sessionID, entityType, key string, doc entity.Document) (int64, error) {
	// Read-modify-write on the version counter. Last write wins; the
	// counter is diagnostic, never compared.
	existing, err := r.GetEntity(ctx, sessionID, entityType, key)
	if err != nil {
		return 0, err
	}
	version := existing.Version() + 1
	doc.Set("version", float64(version))

	data, err := json.Marshal(doc)
	if err != nil {
		r.logger.Error("Failed to marshal entity", "session_id", sessionID, "key", key, "error", err)
		return 0, fmt.Errorf("failed to marshal entity: %w", err)
	}

	cmd := r.client.Set(ctx, entityKey(sessionID, entityType, key), string(data), 0)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to save entity", "session_id", sessionID, "key", key, "error", err)
		return 0, fmt.Errorf("failed to save entity: %w", err)
	}

	return version, nil
}

func (r *RedisStore) ListEntities(ctx context.Context, sessionID, entityType string) ([]string, error) {
	prefix := fmt.Sprintf("entity:%s:%s:", sessionID, entityType)
	keys, err := r.scanKeys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	patterns := []string{
		fmt.Sprintf("entity:%s:*", sessionID),
		fmt.Sprintf("propdef:%s:*", sessionID),
	}

	var keys []string
	for _, pattern := range patterns {
		found, err := r.scanKeys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("failed to scan session keys: %w", err)
		}
		keys = append(keys, found...)
	}
	keys = append(keys, rulesetKey(sessionID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Error("Failed to delete session", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ruleset operations

func (r *RedisStore) SaveRuleset(ctx context.Context, rs *storage.Ruleset) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal ruleset: %w", err)
	}

	cmd := r.client.Set(ctx, rulesetKey(rs.SessionID), string(data), 0)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to save ruleset", "session_id", rs.SessionID, "error", err)
		return fmt.Errorf("failed to save ruleset: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadRuleset(ctx context.Context, sessionID string) (*storage.Ruleset, error) {
	cmd := r.client.Get(ctx, rulesetKey(sessionID))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil // Return nil for not found
		}
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}

	var rs storage.Ruleset
	if err := json.Unmarshal([]byte(cmd.Val()), &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ruleset: %w", err)
	}
	return &rs, nil
}

func (r *RedisStore) ListSessions(ctx context.Context) ([]string, error) {
	keys, err := r.scanKeys(ctx, "ruleset:*")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]string, 0, len(keys))
	for _, k := range keys {
		sessions = append(sessions, strings.TrimPrefix(k, "ruleset:"))
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Property definition operations

func (r *RedisStore) SavePropertyDefinition(ctx context.Context, def *entity.PropertyDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal property definition: %w", err)
	}

	// SETNX gives uniqueness per (session, type, name) without a
	// read-check race.
	key := propDefKey(def.SessionID, def.EntityType, def.PropertyName)
	set, err := r.client.SetNX(ctx, key, string(data), 0).Result()
	if err != nil {
		r.logger.Error("Failed to save property definition", "session_id", def.SessionID, "name", def.PropertyName, "error", err)
		return fmt.Errorf("failed to save property definition: %w", err)
	}
	if !set {
		return storage.ErrPropertyExists
	}
	return nil
}

func (r *RedisStore) ListPropertyDefinitions(ctx context.Context, sessionID, entityType string) ([]entity.PropertyDefinition, error) {
	prefix := fmt.Sprintf("propdef:%s:%s:", sessionID, entityType)
	keys, err := r.scanKeys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list property definitions: %w", err)
	}
	sort.Strings(keys)

	defs := make([]entity.PropertyDefinition, 0, len(keys))
	for _, k := range keys {
		cmd := r.client.Get(ctx, k)
		if err := cmd.Err(); err != nil {
			if err == redis.Nil {
				continue // deleted between scan and get
			}
			return nil, fmt.Errorf("failed to load property definition: %w", err)
		}
		var def entity.PropertyDefinition
		if err := json.Unmarshal([]byte(cmd.Val()), &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal property definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
