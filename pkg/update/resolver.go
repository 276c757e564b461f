package update

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gmforge/sheetengine/pkg/derive"
	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/invariant"
	"github.com/gmforge/sheetengine/pkg/storage"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

// StandardCategories is the search order for flat keys: a bare "strength"
// resolves to the first category that already holds it. Rulesets with other
// conventions may replace this at setup.
var StandardCategories = []string{
	"attributes",
	"resources",
	"skills",
	"features",
	"progression",
	"identity",
	"meta",
}

// allowedFields are always writable even when a vocabulary would reject
// them: engine-level bookkeeping the narrator moves regardless of ruleset.
var allowedFields = map[string]bool{
	"location_key": true,
	"disposition":  true,
	"scene_state":  true,
	"conditions":   true,
	"notes":        true,
}

// Resolver runs the update pipeline for one session: load, resolve paths,
// adjust, update, apply inventory ops, recalculate, validate, persist once.
type Resolver struct {
	store      storage.EntityStore
	voc        *vocab.Vocabulary
	derive     *derive.Engine
	validator  *invariant.Validator
	logger     *slog.Logger
	categories []string
}

// NewResolver creates a resolver over an entity store.
func NewResolver(store storage.EntityStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:      store,
		logger:     logger,
		categories: StandardCategories,
	}
}

// WithVocabulary sets the ruleset authority used for path validation,
// derived stats, and invariants. Returns the Resolver for chaining.
func (r *Resolver) WithVocabulary(v *vocab.Vocabulary) *Resolver {
	r.voc = v
	return r
}

// WithDerive sets the derived-stat engine. Returns the Resolver for chaining.
func (r *Resolver) WithDerive(e *derive.Engine) *Resolver {
	r.derive = e
	return r
}

// WithValidator sets the invariant validator. Returns the Resolver for
// chaining.
func (r *Resolver) WithValidator(v *invariant.Validator) *Resolver {
	r.validator = v
	return r
}

// WithCategories overrides the flat-key search order.
func (r *Resolver) WithCategories(categories []string) *Resolver {
	if len(categories) > 0 {
		r.categories = categories
	}
	return r
}

// Apply runs one tool call through the pipeline. The returned error is
// reserved for storage failures; everything else narrates into the Result.
func (r *Resolver) Apply(ctx context.Context, sessionID string, req Request) (*Result, error) {
	res := newResult()

	entityType, key := ParseTarget(req.Target)
	if key == "" {
		res.errorf("No target specified")
		return res, nil
	}
	if !entity.ValidType(entityType) {
		res.errorf("Unknown entity type '%s'", entityType)
		return res, nil
	}

	doc, err := r.store.GetEntity(ctx, sessionID, entityType, key)
	if err != nil {
		return nil, fmt.Errorf("loading %s %q: %w", entityType, key, err)
	}

	r.applyAdjustments(doc, req.Adjustments, res)
	r.applyUpdates(doc, req.Updates, res)
	r.applyInventory(doc, req.Inventory, res)

	// Recalculation is sheet math; only characters carry sheets.
	if r.derive != nil && entityType == entity.TypeCharacter {
		res.Changes = append(res.Changes, r.derive.Recalculate(doc, r.voc)...)
	}
	if r.validator != nil {
		vres := r.validator.Validate(doc, r.voc, true)
		res.Changes = append(res.Changes, vres.Fixes...)
		res.Changes = append(res.Changes, vres.Warnings...)
		res.Errors = append(res.Errors, vres.Errors...)
	}

	version, err := r.store.SetEntity(ctx, sessionID, entityType, key, doc)
	if err != nil {
		return nil, fmt.Errorf("persisting %s %q: %w", entityType, key, err)
	}

	r.logger.Debug("entity updated",
		"session_id", sessionID,
		"entity_type", entityType,
		"key", key,
		"version", version,
		"changes", len(res.Changes),
		"errors", len(res.Errors))
	return res, nil
}

func (r *Resolver) applyAdjustments(doc entity.Document, adjustments map[string]any, res *Result) {
	for _, k := range sortedKeys(adjustments) {
		path := r.resolvePath(doc, normalizePath(k))
		if !r.pathAllowed(doc, path) {
			res.errorf("Cannot adjust '%s': not a recognized field for this ruleset", path)
			continue
		}
		path = redirectPool(doc, path, adjustments[k])

		delta, ok := entity.ToNumber(adjustments[k])
		if !ok {
			res.errorf("Cannot adjust '%s': adjustment %v is not a number", path, adjustments[k])
			continue
		}

		old := float64(0)
		if raw, exists := doc.Get(path); exists {
			n, isNum := entity.ToNumber(raw)
			if !isNum {
				res.errorf("Cannot adjust '%s': value %v is not a number", path, raw)
				continue
			}
			old = n
		}

		doc.Set(path, old+delta)
		res.changef("%s: %v -> %v", path, old, old+delta)
	}
}

func (r *Resolver) applyUpdates(doc entity.Document, updates map[string]any, res *Result) {
	for _, k := range sortedKeys(updates) {
		path := r.resolvePath(doc, normalizePath(k))
		if !r.pathAllowed(doc, path) {
			res.errorf("Cannot set '%s': not a recognized field for this ruleset", path)
			continue
		}
		path = redirectPool(doc, path, updates[k])

		doc.Set(path, updates[k])
		res.changef("Set %s = %v", path, updates[k])
	}
}

// resolvePath maps a key onto the document: dotted keys are literal paths,
// flat keys match the root first and then the category search order, and
// anything unknown lands at the root.
func (r *Resolver) resolvePath(doc entity.Document, key string) string {
	if strings.Contains(key, ".") {
		return key
	}
	if _, exists := doc[key]; exists {
		return key
	}
	for _, cat := range r.categories {
		candidate := cat + "." + key
		if doc.Has(candidate) {
			return candidate
		}
	}
	return key
}

// pathAllowed gates writes at apply time. Fields already on the entity stay
// writable, bookkeeping fields and the properties sandbox are always open,
// and everything else must be in the vocabulary. Without a vocabulary there
// is no authority to refuse.
func (r *Resolver) pathAllowed(doc entity.Document, path string) bool {
	if r.voc == nil {
		return true
	}
	if doc.Has(path) {
		return true
	}
	root := path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		root = path[:i]
	}
	if allowedFields[root] {
		return true
	}
	if root == "properties" {
		return true
	}
	return r.voc.ValidatePath(path)
}

// redirectPool sends scalar writes aimed at a {current, max} molecule to its
// current component.
func redirectPool(doc entity.Document, path string, value any) string {
	if _, isMap := value.(map[string]any); isMap {
		return path
	}
	if m, ok := doc.Map(path); ok {
		if _, hasCurrent := m["current"]; hasCurrent {
			return path + ".current"
		}
	}
	return path
}

// ParseTarget splits "[type:]key" and normalizes the key. A bare key targets
// a character.
func ParseTarget(target string) (entityType, key string) {
	entityType = entity.TypeCharacter
	key = strings.TrimSpace(target)
	if i := strings.IndexByte(key, ':'); i >= 0 {
		entityType = strings.TrimSpace(strings.ToLower(key[:i]))
		key = key[i+1:]
	}
	return entityType, toSnakeCase(strings.TrimSpace(key))
}

// normalizePath snake_cases each path segment without disturbing the dots.
func normalizePath(key string) string {
	segments := strings.Split(strings.TrimSpace(key), ".")
	for i, seg := range segments {
		segments[i] = toSnakeCase(seg)
	}
	return strings.Join(segments, ".")
}

// toSnakeCase converts a string to lower snake_case.
func toSnakeCase(s string) string {
	var out strings.Builder
	prevUnderscore := false
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		if r == ' ' || r == '-' || r == '.' || r == '_' {
			if !prevUnderscore && i > 0 {
				out.WriteRune('_')
				prevUnderscore = true
			}
			continue
		}
		out.WriteRune(r)
		prevUnderscore = false
	}
	return strings.TrimSuffix(out.String(), "_")
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
