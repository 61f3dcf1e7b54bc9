package ranking

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/boards/pkg/types"
)

// Slot is the ranking view of one task: its identity and current ordinal.
type Slot struct {
	ID      string
	Ordinal int
}

// Assignment changes the ordinal of one task from From to To.
type Assignment struct {
	ID   string
	From int
	To   int
}

// Plan is the outcome of a planning step. Target is the final ordinal of the
// task the operation acts on (0 for removals). Shifts lists the siblings
// whose ordinal changes, in input order; the subject task is never included.
type Plan struct {
	Target int
	Shifts []Assignment
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SlotsOf converts tasks to slots.
func SlotsOf(tasks []*types.Task) []Slot {
	slots := make([]Slot, len(tasks))
	for i, t := range tasks {
		slots[i] = Slot{ID: t.TaskID, Ordinal: t.Ordinal}
	}
	return slots
}

// PlanAppend returns the ordinal a new task receives in a column that holds
// count tasks. Appending never shifts siblings.
func PlanAppend(count int) int {
	return count + 1
}

// PlanRemove closes the gap left by removing id: every sibling ranked after
// it moves up one slot.
func PlanRemove(siblings []Slot, id string) (Plan, error) {
	r, ok := ordinalOf(siblings, id)
	if !ok {
		return Plan{}, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
	}
	var plan Plan
	for _, s := range siblings {
		if s.ID != id && s.Ordinal > r {
			plan.Shifts = append(plan.Shifts, Assignment{ID: s.ID, From: s.Ordinal, To: s.Ordinal - 1})
		}
	}
	return plan, nil
}

// PlanReposition moves id to requested within its own column. The request is
// clamped into [1, len(siblings)]. Moving down shifts the siblings in
// (cur, target] up by one; moving up shifts those in [target, cur) down by
// one. A plan whose Target equals the current ordinal has no shifts.
func PlanReposition(siblings []Slot, id string, requested int) (Plan, error) {
	cur, ok := ordinalOf(siblings, id)
	if !ok {
		return Plan{}, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
	}
	target := Clamp(requested, 1, len(siblings))
	plan := Plan{Target: target}
	if target == cur {
		return plan, nil
	}
	for _, s := range siblings {
		if s.ID == id {
			continue
		}
		switch {
		case target > cur && s.Ordinal > cur && s.Ordinal <= target:
			plan.Shifts = append(plan.Shifts, Assignment{ID: s.ID, From: s.Ordinal, To: s.Ordinal - 1})
		case target < cur && s.Ordinal >= target && s.Ordinal < cur:
			plan.Shifts = append(plan.Shifts, Assignment{ID: s.ID, From: s.Ordinal, To: s.Ordinal + 1})
		}
	}
	return plan, nil
}

// PlanTransfer moves id out of source and into dest at requested. The
// request is clamped into [1, len(dest)+1]. Source siblings ranked after the
// task close the gap; destination siblings at or after the target open a
// slot. Source shifts come before destination shifts in the result.
func PlanTransfer(source, dest []Slot, id string, requested int) (Plan, error) {
	from, ok := ordinalOf(source, id)
	if !ok {
		return Plan{}, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
	}
	if _, inDest := ordinalOf(dest, id); inDest {
		return Plan{}, fmt.Errorf("task %s: %w", id, types.ErrConflict)
	}
	target := Clamp(requested, 1, len(dest)+1)
	plan := Plan{Target: target}
	for _, s := range source {
		if s.ID != id && s.Ordinal >= from {
			plan.Shifts = append(plan.Shifts, Assignment{ID: s.ID, From: s.Ordinal, To: s.Ordinal - 1})
		}
	}
	for _, s := range dest {
		if s.Ordinal >= target {
			plan.Shifts = append(plan.Shifts, Assignment{ID: s.ID, From: s.Ordinal, To: s.Ordinal + 1})
		}
	}
	return plan, nil
}

// CheckDense returns an error wrapping types.ErrDensity unless the ordinals,
// in any order, are exactly 1..len(ordinals).
func CheckDense(ordinals []int) error {
	sorted := make([]int, len(ordinals))
	copy(sorted, ordinals)
	sort.Ints(sorted)
	for i, o := range sorted {
		if o != i+1 {
			return fmt.Errorf("%w: expected %d at position %d, found %d", types.ErrDensity, i+1, i+1, o)
		}
	}
	return nil
}

func ordinalOf(slots []Slot, id string) (int, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s.Ordinal, true
		}
	}
	return 0, false
}
