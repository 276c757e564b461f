package setup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmforge/sheetengine/internal/services"
	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/sheet"
	"github.com/gmforge/sheetengine/pkg/storage"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

const voidBlueprintJSON = `{
	"system": "Void Reaches",
	"summary": "Grimdark space opera",
	"categories": {
		"attributes": [{"name": "Grit", "concept": "stat", "default": 2}],
		"resources": [{"name": "Stress", "concept": "pool", "max_val": 8}]
	}
}`

const voidCharacterJSON = `{
	"meta": {}, "identity": {}, "attributes": {"grit": 3}, "skills": {},
	"resources": {"stress": {"current": 8, "max": 8}}, "features": {},
	"inventory": {}, "connections": {}, "narrative": {}, "progression": {}
}`

func newTestService(t *testing.T) (*Service, *storage.MockStore, *services.MockLLMService) {
	t.Helper()
	store := storage.NewMockStore()
	llm := services.NewMockLLMService()
	svc, err := NewService(store, llm, nil)
	require.NoError(t, err)
	return svc, store, llm
}

func waitReady(t *testing.T, store *storage.MockStore, sessionID string) *storage.Ruleset {
	t.Helper()
	var rs *storage.Ruleset
	require.Eventually(t, func() bool {
		loaded, err := store.LoadRuleset(context.Background(), sessionID)
		if err != nil || loaded == nil || loaded.Status != storage.StatusReady {
			return false
		}
		rs = loaded
		return true
	}, 2*time.Second, 10*time.Millisecond, "session never became ready")
	return rs
}

func TestCreateSessionDefaultRuleset(t *testing.T) {
	svc, store, llm := newTestService(t)

	rs, err := svc.CreateSession(context.Background(), CreateSessionRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.SessionID)
	assert.Equal(t, storage.StatusPreparing, rs.Status)
	assert.Equal(t, "d20 Fantasy", rs.System)
	assert.False(t, rs.Degraded)

	waitReady(t, store, rs.SessionID)

	// No design call without a concept; the mock's default {} response fails
	// schema validation, so the character is the spec scaffold.
	_, genCalls := llm.GetCalls()
	assert.Len(t, genCalls, 1)

	doc, err := store.GetEntity(context.Background(), rs.SessionID, entity.TypeCharacter, DefaultCharacterKey)
	require.NoError(t, err)

	str, _ := doc.Number("attributes.strength")
	assert.Equal(t, float64(10), str)
	hp, _ := doc.Number("resources.hp.current")
	assert.Equal(t, float64(10), hp)
	assert.True(t, doc.Has("conditions"))
	assert.True(t, doc.Has("location_key"))
	assert.Equal(t, int64(1), doc.Version())
}

func TestCreateSessionDesignedRuleset(t *testing.T) {
	svc, store, llm := newTestService(t)
	llm.GenerateStructuredFunc = func(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error) {
		props, _ := schema["properties"].(map[string]any)
		if _, isDesign := props["system"]; isDesign {
			return json.RawMessage(voidBlueprintJSON), nil
		}
		return json.RawMessage(voidCharacterJSON), nil
	}

	rs, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Concept:          "grimdark space opera with a crew of scavengers",
		CharacterConcept: "a hollow-eyed salvage diver",
	})
	require.NoError(t, err)
	assert.Equal(t, "Void Reaches", rs.System)
	assert.False(t, rs.Degraded)

	ready := waitReady(t, store, rs.SessionID)
	assert.Equal(t, "Void Reaches", ready.System)

	require.NotNil(t, ready.Vocabulary)
	assert.True(t, ready.Vocabulary.ValidatePath("attributes.grit"))
	assert.True(t, ready.Vocabulary.ValidatePath("resources.stress.current"))
	assert.False(t, ready.Vocabulary.ValidatePath("attributes.strength"))

	doc, err := store.GetEntity(context.Background(), rs.SessionID, entity.TypeCharacter, DefaultCharacterKey)
	require.NoError(t, err)
	grit, _ := doc.Number("attributes.grit")
	assert.Equal(t, float64(3), grit)
	stress, _ := doc.Number("resources.stress.max")
	assert.Equal(t, float64(8), stress)

	_, genCalls := llm.GetCalls()
	require.Len(t, genCalls, 2)
	assert.Contains(t, genCalls[0].User, "grimdark space opera")
	assert.Contains(t, genCalls[1].User, "Void Reaches")
	assert.Contains(t, genCalls[1].User, "salvage diver")
	assert.Contains(t, genCalls[1].User, "placeholders")
}

func TestCreateSessionShippedVocabulary(t *testing.T) {
	svc, store, _ := newTestService(t)

	dir := t.TempDir()
	fateYAML := `system: Fate Condensed
fields:
  - path: skills.*
    type: ladder
    role: capability
  - path: resources.fate_points
    type: pool
    role: resource
    min_value: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fate.yaml"), []byte(fateYAML), 0o644))
	svc.WithDataDir(dir)

	rs, err := svc.CreateSession(context.Background(), CreateSessionRequest{System: "fate"})
	require.NoError(t, err)
	assert.Equal(t, "Fate Condensed", rs.System, "vocabulary names the ruleset")
	assert.False(t, rs.Degraded)
	require.NotNil(t, rs.Vocabulary)
	assert.True(t, rs.Vocabulary.ValidatePath("resources.fate_points.current"))
	assert.True(t, rs.Vocabulary.ValidatePath("skills.provoke"))
	assert.False(t, rs.Vocabulary.ValidatePath("attributes.strength"))

	waitReady(t, store, rs.SessionID)

	t.Run("unknown system falls through to default", func(t *testing.T) {
		rs, err := svc.CreateSession(context.Background(), CreateSessionRequest{System: "nonesuch"})
		require.NoError(t, err)
		assert.Equal(t, "d20 Fantasy", rs.System)
	})
}

func TestCreateSessionDesignFailureDegrades(t *testing.T) {
	svc, store, llm := newTestService(t)
	llm.SetGenerateStructuredError(errors.New("api down"))

	rs, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Concept:          "weird west gunslingers",
		CharacterConcept: "a stoic dwarf",
	})
	require.NoError(t, err, "design failures degrade, never propagate")
	assert.True(t, rs.Degraded)
	assert.Equal(t, "d20 Fantasy", rs.System)
	require.NotNil(t, rs.Vocabulary)
	assert.True(t, rs.Vocabulary.ValidatePath("attributes.strength"))

	waitReady(t, store, rs.SessionID)

	doc, err := store.GetEntity(context.Background(), rs.SessionID, entity.TypeCharacter, DefaultCharacterKey)
	require.NoError(t, err)
	concept, _ := doc.Get("identity.concept")
	assert.Equal(t, "a stoic dwarf", concept)
}

func TestCreateSessionSaveError(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.SetSaveError(errors.New("disk full"))

	_, err := svc.CreateSession(context.Background(), CreateSessionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving ruleset")
}

func TestDesignRuleset(t *testing.T) {
	t.Run("valid blueprint passes through", func(t *testing.T) {
		svc, _, llm := newTestService(t)
		llm.SetStructuredResponse(json.RawMessage(voidBlueprintJSON))

		bp, degraded := svc.DesignRuleset(context.Background(), "space opera")
		assert.False(t, degraded)
		assert.Equal(t, "Void Reaches", bp.System)
		require.Len(t, bp.Categories["resources"], 1)
		assert.Equal(t, sheet.ConceptPool, bp.Categories["resources"][0].Concept)
	})

	t.Run("malformed JSON degrades to default", func(t *testing.T) {
		svc, _, llm := newTestService(t)
		llm.SetStructuredResponse(json.RawMessage(`the mists part to reveal`))

		bp, degraded := svc.DesignRuleset(context.Background(), "space opera")
		assert.True(t, degraded)
		assert.Equal(t, "d20 Fantasy", bp.System)
	})

	t.Run("empty blueprint degrades to default", func(t *testing.T) {
		svc, _, llm := newTestService(t)
		llm.SetStructuredResponse(json.RawMessage(`{}`))

		bp, degraded := svc.DesignRuleset(context.Background(), "space opera")
		assert.True(t, degraded)
		assert.Equal(t, "d20 Fantasy", bp.System)
	})
}

func defaultRuleset() *storage.Ruleset {
	return &storage.Ruleset{
		SessionID:  "test-session",
		System:     "d20 Fantasy",
		Status:     storage.StatusPreparing,
		Spec:       sheet.Hydrate(DefaultBlueprint()),
		Vocabulary: vocab.DefaultD20(),
	}
}

func TestPopulateCharacterValid(t *testing.T) {
	svc, _, llm := newTestService(t)
	rs := defaultRuleset()
	schema := sheet.Compile(rs.Spec)

	// Dexterity 14 should drive initiative to +2 on the derive pass, and
	// constitution 12 holds the hp vital at 11.
	llm.SetStructuredResponse(json.RawMessage(`{
		"meta": {},
		"identity": {"name": "Elara", "ancestry": "elf", "class": "ranger", "concept": "wary scout"},
		"attributes": {"strength": 10, "dexterity": 14, "constitution": 12, "intelligence": 10,
			"wisdom": 10, "charisma": 10, "armor_class": 13, "initiative": 0,
			"passive_perception": 10, "hit_die": "d10"},
		"skills": {"athletics": 1, "stealth": 4, "perception": 2, "arcana": 0, "persuasion": 0},
		"resources": {"hp": {"current": 11, "max": 11}, "hit_dice": {"current": 1, "max": 1}},
		"features": {"abilities": [{"name": "Keen Senses", "description": "advantage on perception"}]},
		"inventory": {"backpack": [{"name": "rope", "qty": 1}]},
		"connections": {"bonds": []},
		"narrative": {"backstory": "raised in the border wood", "goals": "find the lost caravan"},
		"progression": {"level": 1, "xp": 0}
	}`))

	doc := svc.PopulateCharacter(context.Background(), rs, schema, "wary elven scout")

	name, _ := doc.Get("identity.name")
	assert.Equal(t, "Elara", name)
	init, _ := doc.Number("attributes.initiative")
	assert.Equal(t, float64(2), init, "derive pass recomputes initiative from dexterity")
	hpMax, _ := doc.Number("resources.hp.max")
	assert.Equal(t, float64(11), hpMax)
	assert.True(t, doc.Has("conditions"))
	assert.True(t, doc.Has("location_key"))
}

func TestPopulateCharacterInvalidDegradesToScaffold(t *testing.T) {
	svc, _, llm := newTestService(t)
	rs := defaultRuleset()
	schema := sheet.Compile(rs.Spec)

	llm.SetStructuredResponse(json.RawMessage(`{"attributes": {"strength": 18}}`))

	doc := svc.PopulateCharacter(context.Background(), rs, schema, "a stoic dwarf")

	str, _ := doc.Number("attributes.strength")
	assert.Equal(t, float64(10), str, "partial responses are discarded, not merged")
	concept, _ := doc.Get("identity.concept")
	assert.Equal(t, "a stoic dwarf", concept)
	hp, _ := doc.Number("resources.hp.current")
	assert.Equal(t, float64(10), hp, "scaffold pools start full")
}

func TestDeriveVocabulary(t *testing.T) {
	bp := &sheet.Blueprint{
		System: "Test System",
		Categories: map[string][]sheet.BlueprintField{
			"identity":   {{Name: "alias", Concept: sheet.ConceptText}, {Name: "luck_die", Concept: sheet.ConceptDie}},
			"attributes": {{Name: "edge", Concept: sheet.ConceptStat}},
			"skills":     {{Name: "skulk", Concept: sheet.ConceptStat}},
			"resources": {
				{Name: "stress", Concept: sheet.ConceptPool, MaxVal: fptr(8)},
				{Name: "harm", Concept: sheet.ConceptTrack, MaxVal: fptr(3)},
			},
			"features": {{Name: "scars", Concept: sheet.ConceptList}},
			"meta":     {{Name: "veteran", Concept: sheet.ConceptToggle}},
		},
	}
	spec := sheet.Hydrate(bp)
	spec.Attributes["reflex"] = &sheet.Field{
		Key: "reflex", Container: sheet.ContainerAtom, Data: sheet.DataDerived, Formula: "edge * 2",
	}

	v := deriveVocabulary(spec, "Test System")
	require.NoError(t, v.Validate())

	cases := map[string]string{
		"identity.alias":    vocab.TypeText,
		"identity.luck_die": vocab.TypeDie,
		"attributes.edge":   vocab.TypeNumber,
		"attributes.reflex": vocab.TypeNumber,
		"skills.skulk":      vocab.TypeNumber,
		"resources.stress":  vocab.TypePool,
		"resources.harm":    vocab.TypeTrack,
		"features.scars":    vocab.TypeList,
		"meta.veteran":      vocab.TypeTag,
		"conditions":        vocab.TypeList,
	}
	for path, wantType := range cases {
		def, ok := v.Field(path)
		require.True(t, ok, "expected %s to be declared", path)
		assert.Equal(t, wantType, def.Type, path)
	}

	skulk, _ := v.Field("skills.skulk")
	assert.Equal(t, vocab.RoleCapability, skulk.Role)
	stress, _ := v.Field("resources.stress")
	assert.Equal(t, vocab.RoleResource, stress.Role)

	assert.True(t, v.ValidatePath("resources.stress.current"), "pool components covered")
	assert.False(t, v.ValidatePath("resources.unheard_of"))

	names := make(map[string]string, len(v.Invariants))
	for _, inv := range v.Invariants {
		names[inv.Name] = inv.Policy
	}
	assert.Equal(t, vocab.PolicyAutoCorrect, names["resources_stress_bounds"])
	assert.Equal(t, vocab.PolicyAutoCorrect, names["resources_harm_bounds"])

	require.Len(t, v.Derived, 1)
	assert.Equal(t, "attributes.reflex", v.Derived[0].Path)
	assert.Equal(t, "edge * 2", v.Derived[0].Formula)
}
