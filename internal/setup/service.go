// Package setup drives game session creation: ruleset design, sheet
// compilation, and initial character population. Generation is best-effort.
// Every failure degrades toward the built-in d20 ruleset instead of aborting
// setup.
package setup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gmforge/sheetengine/internal/services"
	"github.com/gmforge/sheetengine/pkg/derive"
	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/expr"
	"github.com/gmforge/sheetengine/pkg/invariant"
	"github.com/gmforge/sheetengine/pkg/sheet"
	"github.com/gmforge/sheetengine/pkg/storage"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

// DefaultCharacterKey is the entity key the player character is stored under.
const DefaultCharacterKey = "character"

const designSystemPrompt = `You are a tabletop RPG systems designer. Given a game concept, design a
character sheet blueprint for it. Use snake_case field names. Pick the
simplest concept for each field: stat for numbers, pool for spendable
resources like hit points, track for progress clocks, die for die ratings,
toggle for on/off flags, list for tables of rows, text for everything else.
Leave a category empty rather than padding it with filler.`

const populateSystemPrompt = `You are a tabletop RPG character generator. Fill the provided character
sheet schema with starting values that fit the concept. Supply every field.
Numbers must be JSON numbers, not strings. Pools start full: set current
equal to max.`

// Service creates sessions: it designs, loads, or falls back to a ruleset,
// compiles the sheet schema, and populates the starting character.
type Service struct {
	store     storage.EntityStore
	llm       services.LLMService
	logger    *slog.Logger
	derive    *derive.Engine
	validator *invariant.Validator
	dataDir   string
}

// NewService wires a setup service over the entity store and LLM boundary.
func NewService(store storage.EntityStore, llm services.LLMService, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	eval, err := expr.New()
	if err != nil {
		return nil, fmt.Errorf("creating expression evaluator: %w", err)
	}
	return &Service{
		store:     store,
		llm:       llm,
		logger:    logger,
		derive:    derive.NewEngine(eval, logger),
		validator: invariant.NewValidator(eval, logger),
	}, nil
}

// WithDataDir points the service at a directory of shipped vocabulary files,
// one per system ("fate" -> fate.yaml). Returns the Service for chaining.
func (s *Service) WithDataDir(dir string) *Service {
	s.dataDir = dir
	return s
}

// CreateSessionRequest describes a new game session. An empty Concept selects
// the built-in d20 ruleset. System, when it names a shipped vocabulary file,
// pins the ruleset authority to it. Vocabulary, when set, overrides both.
type CreateSessionRequest struct {
	SessionID        string            `json:"session_id,omitempty"`
	Concept          string            `json:"concept,omitempty"`
	System           string            `json:"system,omitempty"`
	CharacterConcept string            `json:"character_concept,omitempty"`
	Vocabulary       *vocab.Vocabulary `json:"-"`
}

// CreateSession designs or loads the ruleset, persists it in preparing
// status, and spawns character population off the request path. The returned
// ruleset is still preparing; deleting the session abandons the background
// result.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*storage.Ruleset, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var (
		bp       *sheet.Blueprint
		degraded bool
	)
	if strings.TrimSpace(req.Concept) == "" {
		bp = DefaultBlueprint()
	} else {
		bp, degraded = s.DesignRuleset(ctx, req.Concept)
	}

	spec := sheet.Hydrate(bp)
	voc := req.Vocabulary
	if voc == nil {
		voc = s.loadVocabulary(req.System)
	}
	if voc == nil {
		if degraded || strings.TrimSpace(req.Concept) == "" {
			voc = vocab.DefaultD20()
		} else {
			voc = deriveVocabulary(spec, bp.System)
		}
	}

	// The vocabulary names the ruleset; a shipped file may rename what the
	// blueprint called itself.
	system := spec.System
	if voc.System != "" {
		system = voc.System
	}

	rs := &storage.Ruleset{
		SessionID:  sessionID,
		System:     system,
		Status:     storage.StatusPreparing,
		Spec:       spec,
		Vocabulary: voc,
		Degraded:   degraded,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveRuleset(ctx, rs); err != nil {
		return nil, fmt.Errorf("saving ruleset: %w", err)
	}

	s.logger.Info("session created",
		"session_id", sessionID,
		"system", rs.System,
		"degraded", degraded)

	// Population runs detached: the request context ends with the HTTP
	// request, but generation keeps going until the sheet is stored.
	go s.finishSetup(context.Background(), rs, req.CharacterConcept)

	return rs, nil
}

// finishSetup populates the starting character and flips the session to
// ready. Runs on its own goroutine with its own context.
func (s *Service) finishSetup(ctx context.Context, rs *storage.Ruleset, concept string) {
	schema := sheet.Compile(rs.Spec)
	doc := s.PopulateCharacter(ctx, rs, schema, concept)

	// The session may have been torn down while generation ran; drop the
	// result instead of resurrecting it.
	current, err := s.store.LoadRuleset(ctx, rs.SessionID)
	if err != nil || current == nil {
		s.logger.Debug("session gone before population finished", "session_id", rs.SessionID)
		return
	}

	if _, err := s.store.SetEntity(ctx, rs.SessionID, entity.TypeCharacter, DefaultCharacterKey, doc); err != nil {
		s.logger.Error("saving generated character", "session_id", rs.SessionID, "error", err)
		return
	}

	ready := *rs
	ready.Status = storage.StatusReady
	if err := s.store.SaveRuleset(ctx, &ready); err != nil {
		s.logger.Error("marking session ready", "session_id", rs.SessionID, "error", err)
		return
	}

	s.logger.Info("session ready", "session_id", rs.SessionID, "system", rs.System)
}

// loadVocabulary reads a shipped vocabulary file for a named system. Missing
// or malformed files fall through to the derived vocabulary rather than
// failing setup.
func (s *Service) loadVocabulary(system string) *vocab.Vocabulary {
	if s.dataDir == "" {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(system))
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil
	}

	path := filepath.Join(s.dataDir, name+".yaml")
	v, err := vocab.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("shipped vocabulary failed to load", "system", system, "error", err)
		}
		return nil
	}
	s.logger.Info("loaded shipped vocabulary", "system", system, "path", path)
	return v
}

// DesignRuleset asks the LLM to draft a sheet blueprint for the concept.
// Any failure returns the default d20 blueprint with degraded set; design
// errors never propagate.
func (s *Service) DesignRuleset(ctx context.Context, concept string) (*sheet.Blueprint, bool) {
	prompt := fmt.Sprintf("Design a character sheet for this game:\n\n%s", concept)
	raw, err := s.llm.GenerateStructured(ctx, designSystemPrompt, prompt, blueprintSchema())
	if err != nil {
		s.logger.Warn("ruleset design failed, using default d20", "error", err)
		return DefaultBlueprint(), true
	}

	var bp sheet.Blueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		s.logger.Warn("ruleset design returned malformed blueprint, using default d20", "error", err)
		return DefaultBlueprint(), true
	}
	if strings.TrimSpace(bp.System) == "" || len(bp.Categories) == 0 {
		s.logger.Warn("ruleset design returned empty blueprint, using default d20")
		return DefaultBlueprint(), true
	}
	return &bp, false
}

// PopulateCharacter generates the starting character sheet, constrained by
// the compiled schema. The zero-valued skeleton goes into the prompt as a
// shape hint only; the response is checked against the schema itself. On any
// failure the sheet degrades to the spec's default scaffold.
func (s *Service) PopulateCharacter(ctx context.Context, rs *storage.Ruleset, schema *sheet.Schema, concept string) entity.Document {
	prompt := buildPopulatePrompt(rs.System, concept, schema)
	raw, err := s.llm.GenerateStructured(ctx, populateSystemPrompt, prompt, schema.JSONSchema())
	if err != nil {
		s.logger.Warn("character generation failed, using scaffold",
			"session_id", rs.SessionID, "error", err)
		return s.scaffoldCharacter(rs, concept)
	}

	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger.Warn("character generation returned malformed JSON, using scaffold",
			"session_id", rs.SessionID, "error", err)
		return s.scaffoldCharacter(rs, concept)
	}
	if err := schema.Validate(value); err != nil {
		s.logger.Warn("generated character failed schema validation, using scaffold",
			"session_id", rs.SessionID, "error", err)
		return s.scaffoldCharacter(rs, concept)
	}

	doc := entity.Document(value)
	s.finishCharacter(doc, rs)
	return doc
}

// scaffoldCharacter builds the degrade-path sheet: spec defaults with the
// character concept carried into identity.
func (s *Service) scaffoldCharacter(rs *storage.Ruleset, concept string) entity.Document {
	doc := entity.Document(rs.Spec.Scaffold())
	if strings.TrimSpace(concept) != "" {
		doc.Set("identity.concept", concept)
	}
	s.finishCharacter(doc, rs)
	return doc
}

// finishCharacter stamps the character core fields and runs one derive and
// validate pass so the stored sheet starts coherent.
func (s *Service) finishCharacter(doc entity.Document, rs *storage.Ruleset) {
	if _, ok := doc["conditions"]; !ok {
		doc["conditions"] = []any{}
	}
	if _, ok := doc["location_key"]; !ok {
		doc["location_key"] = ""
	}

	changes := s.derive.Recalculate(doc, rs.Vocabulary)
	vres := s.validator.Validate(doc, rs.Vocabulary, true)
	if len(changes) > 0 || len(vres.Fixes) > 0 {
		s.logger.Debug("initial sheet normalized",
			"session_id", rs.SessionID,
			"derived", len(changes),
			"fixes", len(vres.Fixes))
	}
}

func buildPopulatePrompt(system, concept string, schema *sheet.Schema) string {
	skeleton, err := json.MarshalIndent(schema.Skeleton(), "", "  ")
	if err != nil {
		skeleton = []byte("{}")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a starting character for the game system %q.\n", system)
	if strings.TrimSpace(concept) != "" {
		fmt.Fprintf(&b, "Character concept: %s\n", concept)
	} else {
		b.WriteString("The player has not described a character; invent a fitting one.\n")
	}
	b.WriteString("\nThe sheet has this shape (values below are placeholders):\n")
	b.Write(skeleton)
	return b.String()
}

// blueprintSchema is the JSON Schema handed to the LLM for the design call.
func blueprintSchema() map[string]any {
	field := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"concept": map[string]any{
				"type": "string",
				"enum": []string{
					sheet.ConceptStat, sheet.ConceptText, sheet.ConceptDie,
					sheet.ConceptPool, sheet.ConceptTrack, sheet.ConceptList,
					sheet.ConceptToggle,
				},
			},
			"description":  map[string]any{"type": "string"},
			"default":      map[string]any{},
			"min_val":      map[string]any{"type": "number"},
			"max_val":      map[string]any{"type": "number"},
			"list_columns": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"name", "concept"},
	}

	categories := make(map[string]any, len(sheet.CategoryNames))
	for _, name := range sheet.CategoryNames {
		categories[name] = map[string]any{"type": "array", "items": field}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"system":     map[string]any{"type": "string"},
			"summary":    map[string]any{"type": "string"},
			"categories": map[string]any{"type": "object", "properties": categories},
		},
		"required": []string{"system", "categories"},
	}
}

// categoryRoles maps sheet categories to vocabulary roles for derived
// vocabularies. Categories without a natural role stay unset.
var categoryRoles = map[string]string{
	"identity":    vocab.RoleCore,
	"attributes":  vocab.RoleCore,
	"skills":      vocab.RoleCapability,
	"resources":   vocab.RoleResource,
	"features":    vocab.RoleCapability,
	"progression": vocab.RoleCore,
}

// deriveVocabulary builds a vocabulary mechanically from a hydrated spec, so
// LLM-designed rulesets get path validation and pool bounds without a
// hand-written vocabulary. Pools and tracks pick up a current-within-max
// auto-correct invariant; derived atoms carry their formulas over.
func deriveVocabulary(spec *sheet.Spec, system string) *vocab.Vocabulary {
	v := &vocab.Vocabulary{System: system}

	for _, catName := range sheet.CategoryNames {
		cat, _ := spec.Category(catName)
		role := categoryRoles[catName]
		for _, key := range sortedFieldKeys(cat) {
			fld := cat[key]
			path := catName + "." + key

			switch fld.Container {
			case sheet.ContainerMolecule:
				fieldType := vocab.TypePool
				if fld.Display.Widget == "track" {
					fieldType = vocab.TypeTrack
				}
				v.Fields = append(v.Fields, vocab.FieldDef{
					Path: path, Type: fieldType, Role: role, MinValue: fptr(0),
				})
				v.Invariants = append(v.Invariants, vocab.Invariant{
					Name:   strings.ReplaceAll(path, ".", "_") + "_bounds",
					Path:   path,
					Rule:   "current >= 0 && current <= max",
					Policy: vocab.PolicyAutoCorrect,
				})
			case sheet.ContainerList:
				v.Fields = append(v.Fields, vocab.FieldDef{Path: path, Type: vocab.TypeList, Role: role})
			default:
				switch fld.Data {
				case sheet.DataNumber:
					v.Fields = append(v.Fields, vocab.FieldDef{Path: path, Type: vocab.TypeNumber, Role: role})
				case sheet.DataDerived:
					v.Fields = append(v.Fields, vocab.FieldDef{Path: path, Type: vocab.TypeNumber, Role: role})
					if fld.Formula != "" {
						v.Derived = append(v.Derived, vocab.DerivedStat{Path: path, Formula: fld.Formula})
					}
				case sheet.DataBoolean:
					v.Fields = append(v.Fields, vocab.FieldDef{Path: path, Type: vocab.TypeTag, Role: role})
				default:
					fieldType := vocab.TypeText
					if fld.Display.Widget == "die" {
						fieldType = vocab.TypeDie
					}
					v.Fields = append(v.Fields, vocab.FieldDef{Path: path, Type: fieldType, Role: role})
				}
			}
		}
	}

	// Conditions live at the entity root on every ruleset.
	v.Fields = append(v.Fields, vocab.FieldDef{Path: "conditions", Type: vocab.TypeList, Role: vocab.RoleStatus})
	return v
}

func sortedFieldKeys(cat sheet.Category) []string {
	keys := make([]string, 0, len(cat))
	for key := range cat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func fptr(v float64) *float64 { return &v }
