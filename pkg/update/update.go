// Package update applies AI tool calls to entity documents: free-form
// updates, numeric adjustments, and inventory operations, followed by
// derived-stat recalculation and invariant validation. Application is
// best-effort and per-key; one bad key never blocks the rest.
package update

import "fmt"

// Request is one entity_update tool call. Target names the entity as
// "[type:]key" (type defaults to character). Updates overwrite, adjustments
// add numeric deltas, inventory holds add/remove operations.
type Request struct {
	Target      string         `json:"target_key"`
	Updates     map[string]any `json:"updates,omitempty"`
	Adjustments map[string]any `json:"adjustments,omitempty"`
	Inventory   *InventoryOps  `json:"inventory,omitempty"`
}

// InventoryOps adds and removes inventory rows. Add entries may be bare item
// names or full rows; Remove matches by name, first match wins.
type InventoryOps struct {
	Add    []any    `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// Result is the tool-call response. Success reports that the pipeline ran,
// not that every key applied: per-key failures narrate into Errors so the
// model can relay them in story terms.
type Result struct {
	Success bool     `json:"success"`
	Changes []string `json:"changes"`
	Errors  []string `json:"errors"`
}

func newResult() *Result {
	return &Result{Success: true, Changes: make([]string, 0)}
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) changef(format string, args ...any) {
	r.Changes = append(r.Changes, fmt.Sprintf(format, args...))
}
