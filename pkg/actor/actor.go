// Package actor bridges entity documents onto d20 actors so check and combat
// math can run against a validated stat block regardless of what shape the
// ruleset gave the sheet.
package actor

import (
	"fmt"

	"github.com/jwebster45206/d20"

	"github.com/gmforge/sheetengine/pkg/entity"
)

const (
	defaultHP = 10
	defaultAC = 10
)

// FromDocument builds a d20.Actor from a character document. Ability scores
// come from the attributes (or abilities) category with skills merged in,
// hit points from resources.hp, armor class from attributes.armor_class.
// Missing pieces fall back to plain defaults rather than failing: generated
// sheets vary and the bridge is best-effort.
func FromDocument(key string, doc entity.Document) (*d20.Actor, error) {
	attrs := make(map[string]int)
	mergeNumbers(attrs, doc, "attributes")
	mergeNumbers(attrs, doc, "abilities")
	mergeNumbers(attrs, doc, "skills")

	maxHP := defaultHP
	if n, ok := doc.Number("resources.hp.max"); ok && n > 0 {
		maxHP = int(n)
	}
	curHP := maxHP
	if n, ok := doc.Number("resources.hp.current"); ok {
		curHP = int(n)
	}

	ac := defaultAC
	if n, ok := doc.Number("attributes.armor_class"); ok && n > 0 {
		ac = int(n)
	}

	built, err := d20.NewActor(key).
		WithHP(maxHP).
		WithAC(ac).
		WithAttributes(attrs).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	if curHP != maxHP && curHP > 0 {
		if err := built.SetHP(curHP); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}

	return built, nil
}

// Score reads one ability score off the actor, falling back to 10 (flat
// modifier) when the sheet never defined it.
func Score(a *d20.Actor, name string) int {
	if val, ok := a.Attribute(name); ok {
		return val
	}
	return 10
}

func mergeNumbers(dst map[string]int, doc entity.Document, category string) {
	m, ok := doc.Map(category)
	if !ok {
		return
	}
	for name, raw := range m {
		if n, isNum := entity.ToNumber(raw); isNum {
			dst[name] = int(n)
		}
	}
}
