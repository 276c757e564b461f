package update

import (
	"fmt"
	"strings"

	"github.com/gmforge/sheetengine/pkg/entity"
)

// applyInventory normalizes the inventory shape and applies add/remove ops
// against the backpack.
func (r *Resolver) applyInventory(doc entity.Document, ops *InventoryOps, res *Result) {
	if ops == nil || (len(ops.Add) == 0 && len(ops.Remove) == 0) {
		return
	}

	backpack := normalizeInventory(doc)

	for _, item := range ops.Add {
		row, name, ok := itemRow(item)
		if !ok {
			res.errorf("Cannot add inventory item %v: no name", item)
			continue
		}
		backpack = append(backpack, row)
		res.changef("Added %s to inventory", name)
	}

	for _, name := range ops.Remove {
		idx := findItem(backpack, name)
		if idx < 0 {
			res.errorf("Cannot remove '%s': not found in inventory", name)
			continue
		}
		backpack = append(backpack[:idx], backpack[idx+1:]...)
		res.changef("Removed %s from inventory", name)
	}

	doc.Set("inventory.backpack", backpack)
}

// normalizeInventory migrates legacy shapes to {backpack: [...]} and returns
// the backpack rows. A flat list becomes the backpack; anything else
// unrecognized starts empty.
func normalizeInventory(doc entity.Document) []any {
	raw, exists := doc.Get("inventory")
	if !exists {
		doc.Set("inventory", map[string]any{"backpack": []any{}})
		return nil
	}
	switch inv := raw.(type) {
	case []any:
		doc.Set("inventory", map[string]any{"backpack": inv})
		return inv
	case map[string]any:
		if backpack, ok := inv["backpack"].([]any); ok {
			return backpack
		}
		inv["backpack"] = []any{}
		return nil
	default:
		doc.Set("inventory", map[string]any{"backpack": []any{}})
		return nil
	}
}

// itemRow coerces an add operand into a row. Bare strings become
// {"name": item, "qty": 1}.
func itemRow(item any) (row any, name string, ok bool) {
	switch v := item.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, "", false
		}
		return map[string]any{"name": v, "qty": float64(1)}, v, true
	case map[string]any:
		n, has := v["name"].(string)
		if !has || strings.TrimSpace(n) == "" {
			return nil, "", false
		}
		return v, n, true
	default:
		return nil, fmt.Sprintf("%v", item), false
	}
}

// findItem returns the index of the first row whose name matches,
// case-insensitively. Rows may be maps or legacy bare strings.
func findItem(backpack []any, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, raw := range backpack {
		switch row := raw.(type) {
		case map[string]any:
			if n, ok := row["name"].(string); ok && strings.ToLower(strings.TrimSpace(n)) == want {
				return i
			}
		case string:
			if strings.ToLower(strings.TrimSpace(row)) == want {
				return i
			}
		}
	}
	return -1
}
