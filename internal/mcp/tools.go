package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gmforge/sheetengine/pkg/actor"
	"github.com/gmforge/sheetengine/pkg/derive"
	"github.com/gmforge/sheetengine/pkg/dice"
	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/storage"
	"github.com/gmforge/sheetengine/pkg/update"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

type EntityUpdateInput struct {
	SessionID   string               `json:"session_id" jsonschema:"session holding the entity"`
	Target      string               `json:"target_key" jsonschema:"entity to mutate as [type:]key, e.g. elara or item:healing_potion"`
	Updates     map[string]any       `json:"updates,omitempty" jsonschema:"fields to set by flat key or dot path"`
	Adjustments map[string]any       `json:"adjustments,omitempty" jsonschema:"numeric deltas, e.g. hp: -3"`
	Inventory   *update.InventoryOps `json:"inventory,omitempty" jsonschema:"inventory add and remove operations"`
}

type EntityGetInput struct {
	SessionID string `json:"session_id" jsonschema:"session holding the entity"`
	Target    string `json:"target_key" jsonschema:"entity to read as [type:]key"`
}

type DefinePropertyInput struct {
	SessionID  string   `json:"session_id" jsonschema:"session whose schema gains the property"`
	EntityType string   `json:"entity_type,omitempty" jsonschema:"entity type the property attaches to, defaults to character"`
	Name       string   `json:"name" jsonschema:"property name, e.g. corruption"`
	Type       string   `json:"type" jsonschema:"number, text, boolean, or list"`
	Default    any      `json:"default,omitempty" jsonschema:"initial value seeded onto existing entities"`
	MinValue   *float64 `json:"min_value,omitempty" jsonschema:"lower bound for number properties"`
	MaxValue   *float64 `json:"max_value,omitempty" jsonschema:"upper bound for number properties"`
	Label      string   `json:"label,omitempty" jsonschema:"display label"`
	Regen      string   `json:"regen,omitempty" jsonschema:"recovery hint, e.g. per_rest"`
}

type RollCheckInput struct {
	Notation  string `json:"notation,omitempty" jsonschema:"die notation, e.g. 2d6+1; defaults to 1d20"`
	Ability   string `json:"ability,omitempty" jsonschema:"ability whose modifier applies, e.g. dexterity"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session holding the target, required for ability checks"`
	Target    string `json:"target_key,omitempty" jsonschema:"character whose sheet modifies the roll"`
	Seed      int64  `json:"seed,omitempty" jsonschema:"RNG seed for reproducible rolls"`
}

type GetVocabularyInput struct {
	SessionID string `json:"session_id" jsonschema:"session whose ruleset to read"`
}

type EntityUpdateOutput struct {
	Success bool     `json:"success"`
	Changes []string `json:"changes"`
	Errors  []string `json:"errors,omitempty"`
}

type EntityGetOutput struct {
	EntityType string          `json:"type"`
	Key        string          `json:"key"`
	Document   entity.Document `json:"document"`
}

type DefinePropertyOutput struct {
	ID           string `json:"id"`
	EntityType   string `json:"entity_type"`
	PropertyName string `json:"property_name"`
	Seeded       int    `json:"seeded"`
}

type RollCheckOutput struct {
	Notation        string `json:"notation"`
	Rolls           []int  `json:"rolls"`
	Modifier        int    `json:"modifier,omitempty"`
	Ability         string `json:"ability,omitempty"`
	AbilityScore    int    `json:"ability_score,omitempty"`
	AbilityModifier int    `json:"ability_modifier,omitempty"`
	Total           int    `json:"total"`
}

type GetVocabularyOutput struct {
	System     string              `json:"system"`
	Status     string              `json:"status"`
	Degraded   bool                `json:"degraded,omitempty"`
	Fields     []vocab.FieldDef    `json:"fields"`
	Invariants []vocab.Invariant   `json:"invariants,omitempty"`
	Derived    []vocab.DerivedStat `json:"derived,omitempty"`
	Vitals     []vocab.Vital       `json:"vitals,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "entity_update",
		Description: "Apply updates, numeric adjustments, and inventory changes to an entity's sheet",
	}, s.handleEntityUpdate)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "entity_get",
		Description: "Read an entity's full document",
	}, s.handleEntityGet)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "define_property",
		Description: "Define a new trackable property for an entity type and seed its default",
	}, s.handleDefineProperty)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "roll_check",
		Description: "Roll die notation, optionally modified by a character's ability",
	}, s.handleRollCheck)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_vocabulary",
		Description: "Return the session's ruleset vocabulary: fields, invariants, and derived stats",
	}, s.handleGetVocabulary)
}

func (s *Server) handleEntityUpdate(ctx context.Context, req *sdk.CallToolRequest, input EntityUpdateInput) (*sdk.CallToolResult, EntityUpdateOutput, error) {
	if input.SessionID == "" {
		return nil, EntityUpdateOutput{}, fmt.Errorf("session_id is required")
	}
	rs, err := s.store.LoadRuleset(ctx, input.SessionID)
	if err != nil {
		return nil, EntityUpdateOutput{}, fmt.Errorf("loading session: %w", err)
	}
	if rs == nil {
		return nil, EntityUpdateOutput{}, fmt.Errorf("session not found")
	}

	resolver := update.NewResolver(s.store, s.logger).
		WithVocabulary(rs.Vocabulary).
		WithDerive(s.derive).
		WithValidator(s.validator)

	res, err := resolver.Apply(ctx, input.SessionID, update.Request{
		Target:      input.Target,
		Updates:     input.Updates,
		Adjustments: input.Adjustments,
		Inventory:   input.Inventory,
	})
	if err != nil {
		return nil, EntityUpdateOutput{}, err
	}
	return nil, EntityUpdateOutput{Success: res.Success, Changes: res.Changes, Errors: res.Errors}, nil
}

func (s *Server) handleEntityGet(ctx context.Context, req *sdk.CallToolRequest, input EntityGetInput) (*sdk.CallToolResult, EntityGetOutput, error) {
	if input.SessionID == "" {
		return nil, EntityGetOutput{}, fmt.Errorf("session_id is required")
	}
	if input.Target == "" {
		return nil, EntityGetOutput{}, fmt.Errorf("target_key is required")
	}
	entityType, key := update.ParseTarget(input.Target)
	if !entity.ValidType(entityType) {
		return nil, EntityGetOutput{}, fmt.Errorf("unknown entity type %q", entityType)
	}

	doc, err := s.store.GetEntity(ctx, input.SessionID, entityType, key)
	if err != nil {
		return nil, EntityGetOutput{}, fmt.Errorf("loading %s %q: %w", entityType, key, err)
	}
	if len(doc) == 0 {
		return nil, EntityGetOutput{}, fmt.Errorf("entity not found")
	}
	return nil, EntityGetOutput{EntityType: entityType, Key: key, Document: doc}, nil
}

func (s *Server) handleDefineProperty(ctx context.Context, req *sdk.CallToolRequest, input DefinePropertyInput) (*sdk.CallToolResult, DefinePropertyOutput, error) {
	if input.SessionID == "" {
		return nil, DefinePropertyOutput{}, fmt.Errorf("session_id is required")
	}
	entityType := input.EntityType
	if entityType == "" {
		entityType = entity.TypeCharacter
	}

	def, err := entity.NewPropertyDefinition(input.SessionID, entityType, input.Name, input.Type)
	if err != nil {
		return nil, DefinePropertyOutput{}, err
	}
	def.Default = input.Default
	def.MinValue = input.MinValue
	def.MaxValue = input.MaxValue
	def.Label = input.Label
	def.Regen = input.Regen

	if err := s.store.SavePropertyDefinition(ctx, def); err != nil {
		if errors.Is(err, storage.ErrPropertyExists) {
			return nil, DefinePropertyOutput{}, fmt.Errorf("property %q is already defined for %s", def.PropertyName, def.EntityType)
		}
		return nil, DefinePropertyOutput{}, fmt.Errorf("saving property definition: %w", err)
	}

	seeded := s.seedProperty(ctx, def)
	s.logger.Debug("Property defined",
		"session_id", def.SessionID,
		"entity_type", def.EntityType,
		"property", def.PropertyName,
		"seeded", seeded)
	return nil, DefinePropertyOutput{
		ID:           def.ID,
		EntityType:   def.EntityType,
		PropertyName: def.PropertyName,
		Seeded:       seeded,
	}, nil
}

func (s *Server) handleRollCheck(ctx context.Context, req *sdk.CallToolRequest, input RollCheckInput) (*sdk.CallToolResult, RollCheckOutput, error) {
	notation := input.Notation
	if notation == "" {
		notation = "1d20"
	}
	res, err := dice.RollNotation(notation, input.Seed)
	if err != nil {
		return nil, RollCheckOutput{}, err
	}

	out := RollCheckOutput{
		Notation: res.Notation,
		Rolls:    res.Results,
		Modifier: res.Modifier,
		Total:    res.Total,
	}

	ability := strings.ToLower(strings.TrimSpace(input.Ability))
	if ability == "" {
		return nil, out, nil
	}
	if input.SessionID == "" || input.Target == "" {
		return nil, RollCheckOutput{}, fmt.Errorf("session_id and target_key are required for ability checks")
	}
	entityType, key := update.ParseTarget(input.Target)
	if !entity.ValidType(entityType) {
		return nil, RollCheckOutput{}, fmt.Errorf("unknown entity type %q", entityType)
	}
	doc, err := s.store.GetEntity(ctx, input.SessionID, entityType, key)
	if err != nil {
		return nil, RollCheckOutput{}, fmt.Errorf("loading %s %q: %w", entityType, key, err)
	}
	if len(doc) == 0 {
		return nil, RollCheckOutput{}, fmt.Errorf("entity not found")
	}
	a, err := actor.FromDocument(key, doc)
	if err != nil {
		return nil, RollCheckOutput{}, err
	}

	score, ok := a.Attribute(ability)
	if !ok {
		score, ok = a.Attribute(derive.CanonicalAbility(ability))
	}
	if !ok {
		score = 10
	}
	mod := int(derive.Mod(float64(score)))

	out.Ability = ability
	out.AbilityScore = score
	out.AbilityModifier = mod
	out.Total += mod
	return nil, out, nil
}

func (s *Server) handleGetVocabulary(ctx context.Context, req *sdk.CallToolRequest, input GetVocabularyInput) (*sdk.CallToolResult, GetVocabularyOutput, error) {
	if input.SessionID == "" {
		return nil, GetVocabularyOutput{}, fmt.Errorf("session_id is required")
	}
	rs, err := s.store.LoadRuleset(ctx, input.SessionID)
	if err != nil {
		return nil, GetVocabularyOutput{}, fmt.Errorf("loading session: %w", err)
	}
	if rs == nil {
		return nil, GetVocabularyOutput{}, fmt.Errorf("session not found")
	}

	out := GetVocabularyOutput{
		System:   rs.System,
		Status:   rs.Status,
		Degraded: rs.Degraded,
	}
	if rs.Vocabulary != nil {
		out.Fields = rs.Vocabulary.Fields
		out.Invariants = rs.Vocabulary.Invariants
		out.Derived = rs.Vocabulary.Derived
		out.Vitals = rs.Vocabulary.Vitals
	}
	return nil, out, nil
}

// seedProperty applies the new slot's default onto entities that already
// exist. Best effort: failures are logged and skipped.
func (s *Server) seedProperty(ctx context.Context, def *entity.PropertyDefinition) int {
	keys, err := s.store.ListEntities(ctx, def.SessionID, def.EntityType)
	if err != nil {
		s.logger.Warn("Failed to list entities for property seeding", "error", err)
		return 0
	}

	seeded := 0
	for _, key := range keys {
		doc, err := s.store.GetEntity(ctx, def.SessionID, def.EntityType, key)
		if err != nil || len(doc) == 0 {
			continue
		}
		if !def.ApplyTo(doc) {
			continue
		}
		if _, err := s.store.SetEntity(ctx, def.SessionID, def.EntityType, key, doc); err != nil {
			s.logger.Warn("Failed to seed property", "error", err, "key", key)
			continue
		}
		seeded++
	}
	return seeded
}
