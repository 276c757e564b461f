// Package storage defines the entity persistence boundary. Implementations
// live in internal/storage; the mock here backs tests.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/sheet"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

// ErrPropertyExists signals a duplicate property definition for a
// (session, entity type, name) triple. Definitions are append-only.
var ErrPropertyExists = errors.New("property definition already exists")

// Session statuses.
const (
	StatusPreparing = "preparing" // setup generation still running
	StatusReady     = "ready"
)

// Ruleset is the per-session authority record: the compiled sheet spec and
// the vocabulary it is validated against.
type Ruleset struct {
	SessionID  string            `json:"session_id"`
	System     string            `json:"system"`
	Status     string            `json:"status"`
	Spec       *sheet.Spec       `json:"spec"`
	Vocabulary *vocab.Vocabulary `json:"vocabulary"`
	Degraded   bool              `json:"degraded,omitempty"` // fell back to the default ruleset
	CreatedAt  time.Time         `json:"created_at"`
}

// EntityStore is the unified persistence interface: entity documents,
// per-session rulesets, and property definitions.
type EntityStore interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Entity documents. GetEntity returns an empty document when the entity
	// does not exist; absence is never an error. SetEntity creates or
	// overwrites, stamps the incremented version into the document, and
	// returns it. Writes are last-write-wins.
	GetEntity(ctx context.Context, sessionID, entityType, key string) (entity.Document, error)
	SetEntity(ctx context.Context, sessionID, entityType, key string, doc entity.Document) (int64, error)
	ListEntities(ctx context.Context, sessionID, entityType string) ([]string, error)

	// DeleteSession removes every record for the session. Entities are never
	// hard-deleted any other way.
	DeleteSession(ctx context.Context, sessionID string) error

	// Ruleset records. LoadRuleset returns (nil, nil) when the session has
	// no ruleset.
	SaveRuleset(ctx context.Context, rs *Ruleset) error
	LoadRuleset(ctx context.Context, sessionID string) (*Ruleset, error)
	ListSessions(ctx context.Context) ([]string, error)

	// Property definitions. SavePropertyDefinition returns ErrPropertyExists
	// for a duplicate (session, entity type, name).
	SavePropertyDefinition(ctx context.Context, def *entity.PropertyDefinition) error
	ListPropertyDefinitions(ctx context.Context, sessionID, entityType string) ([]entity.PropertyDefinition, error)
}
