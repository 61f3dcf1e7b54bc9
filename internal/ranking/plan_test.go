package ranking

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boards/pkg/types"
)

// column builds slots named <prefix>1..<prefix>n at ordinals 1..n.
func column(prefix string, n int) []Slot {
	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = Slot{ID: fmt.Sprintf("%s%d", prefix, i+1), Ordinal: i + 1}
	}
	return slots
}

// apply returns id -> ordinal after applying the plan shifts and placing the
// subject task at plan.Target.
func apply(slots []Slot, plan Plan, subject string) map[string]int {
	out := make(map[string]int, len(slots))
	for _, s := range slots {
		out[s.ID] = s.Ordinal
	}
	for _, a := range plan.Shifts {
		out[a.ID] = a.To
	}
	if subject != "" {
		out[subject] = plan.Target
	}
	return out
}

func ordinals(m map[string]int) []int {
	out := make([]int, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	return out
}

// orderWithout returns ids sorted by ordinal, skipping the excluded id.
func orderWithout(m map[string]int, exclude string) []string {
	var ids []string
	for id := range m {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return m[ids[i]] < m[ids[j]] })
	return ids
}

func TestClamp(t *testing.T) {
	tests := []struct{ v, lo, hi, want int }{
		{0, 1, 5, 1},
		{-7, 1, 5, 1},
		{3, 1, 5, 3},
		{6, 1, 5, 5},
		{99, 1, 1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.v, tt.lo, tt.hi), "Clamp(%d,%d,%d)", tt.v, tt.lo, tt.hi)
	}
}

func TestPlanAppend(t *testing.T) {
	assert.Equal(t, 1, PlanAppend(0))
	assert.Equal(t, 6, PlanAppend(5))
}

func TestPlanReposition_ScenarioA(t *testing.T) {
	slots := column("t", 5)
	plan, err := PlanReposition(slots, "t3", 1)
	require.NoError(t, err)

	got := apply(slots, plan, "t3")
	assert.Equal(t, map[string]int{"t1": 2, "t2": 3, "t3": 1, "t4": 4, "t5": 5}, got)
	assert.Len(t, plan.Shifts, 2)
}

func TestPlanReposition_MoveDown(t *testing.T) {
	slots := column("t", 5)
	plan, err := PlanReposition(slots, "t2", 4)
	require.NoError(t, err)

	got := apply(slots, plan, "t2")
	assert.Equal(t, map[string]int{"t1": 1, "t3": 2, "t4": 3, "t2": 4, "t5": 5}, got)
}

func TestPlanReposition_Clamps(t *testing.T) {
	slots := column("t", 4)

	plan, err := PlanReposition(slots, "t2", -3)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Target)

	plan, err = PlanReposition(slots, "t2", 40)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Target)
}

func TestPlanReposition_NoOp(t *testing.T) {
	slots := column("t", 5)
	plan, err := PlanReposition(slots, "t4", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Target)
	assert.Empty(t, plan.Shifts)
}

func TestPlanReposition_SingleTaskAlwaysOne(t *testing.T) {
	slots := column("t", 1)
	for _, req := range []int{-1, 0, 1, 2, 100} {
		plan, err := PlanReposition(slots, "t1", req)
		require.NoError(t, err)
		assert.Equal(t, 1, plan.Target)
		assert.Empty(t, plan.Shifts)
	}
}

func TestPlanReposition_NotFound(t *testing.T) {
	_, err := PlanReposition(column("t", 3), "missing", 1)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// Exhaustive over small columns: density holds and the relative order of
// every other task is preserved.
func TestPlanReposition_Properties(t *testing.T) {
	for n := 1; n <= 6; n++ {
		slots := column("t", n)
		for _, s := range slots {
			for req := -1; req <= n+2; req++ {
				plan, err := PlanReposition(slots, s.ID, req)
				require.NoError(t, err)

				got := apply(slots, plan, s.ID)
				require.NoError(t, CheckDense(ordinals(got)), "n=%d id=%s req=%d", n, s.ID, req)
				assert.Equal(t, Clamp(req, 1, n), got[s.ID])

				before := orderWithout(apply(slots, Plan{}, ""), s.ID)
				after := orderWithout(got, s.ID)
				assert.Equal(t, before, after, "n=%d id=%s req=%d", n, s.ID, req)
			}
		}
	}
}

func TestPlanRemove_ScenarioB(t *testing.T) {
	slots := column("t", 3)
	plan, err := PlanRemove(slots, "t2")
	require.NoError(t, err)
	assert.Equal(t, []Assignment{{ID: "t3", From: 3, To: 2}}, plan.Shifts)

	got := apply(slots, plan, "")
	delete(got, "t2")
	assert.Equal(t, map[string]int{"t1": 1, "t3": 2}, got)
}

func TestPlanRemove_LastOrdinalShiftsNothing(t *testing.T) {
	plan, err := PlanRemove(column("t", 4), "t4")
	require.NoError(t, err)
	assert.Empty(t, plan.Shifts)
}

func TestPlanRemove_Properties(t *testing.T) {
	for n := 1; n <= 6; n++ {
		slots := column("t", n)
		for _, s := range slots {
			plan, err := PlanRemove(slots, s.ID)
			require.NoError(t, err)
			got := apply(slots, plan, "")
			delete(got, s.ID)
			require.NoError(t, CheckDense(ordinals(got)))
			assert.Len(t, plan.Shifts, n-s.Ordinal)
		}
	}
}

func TestPlanRemove_NotFound(t *testing.T) {
	_, err := PlanRemove(nil, "x")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPlanTransfer_ScenarioC(t *testing.T) {
	source := column("s", 3)
	dest := column("d", 2)

	plan, err := PlanTransfer(source, dest, "s2", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Target)
	assert.Equal(t, []Assignment{
		{ID: "s3", From: 3, To: 2},
		{ID: "d2", From: 2, To: 3},
	}, plan.Shifts)
}

func TestPlanTransfer_ScenarioD_EmptyDestination(t *testing.T) {
	plan, err := PlanTransfer(column("s", 2), nil, "s1", 99)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Target)
	assert.Equal(t, []Assignment{{ID: "s2", From: 2, To: 1}}, plan.Shifts)
}

func TestPlanTransfer_ClampsLow(t *testing.T) {
	plan, err := PlanTransfer(column("s", 1), column("d", 3), "s1", -4)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Target)
	assert.Len(t, plan.Shifts, 3)
}

func TestPlanTransfer_AppendAtEnd(t *testing.T) {
	plan, err := PlanTransfer(column("s", 1), column("d", 3), "s1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Target)
	assert.Empty(t, plan.Shifts)
}

func TestPlanTransfer_Errors(t *testing.T) {
	_, err := PlanTransfer(column("s", 2), column("d", 2), "x", 1)
	assert.ErrorIs(t, err, types.ErrNotFound)

	same := column("s", 2)
	_, err = PlanTransfer(same, same, "s1", 1)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestPlanTransfer_Properties(t *testing.T) {
	for n := 1; n <= 4; n++ {
		for m := 0; m <= 4; m++ {
			source, dest := column("s", n), column("d", m)
			for _, s := range source {
				for req := -1; req <= m+3; req++ {
					plan, err := PlanTransfer(source, dest, s.ID, req)
					require.NoError(t, err)

					shifted := make(map[string]int)
					for _, a := range plan.Shifts {
						shifted[a.ID] = a.To
					}
					var src, dst []int
					for _, x := range source {
						if x.ID == s.ID {
							continue
						}
						o := x.Ordinal
						if v, ok := shifted[x.ID]; ok {
							o = v
						}
						src = append(src, o)
					}
					for _, x := range dest {
						o := x.Ordinal
						if v, ok := shifted[x.ID]; ok {
							o = v
						}
						dst = append(dst, o)
					}
					dst = append(dst, plan.Target)

					require.NoError(t, CheckDense(src), "source n=%d m=%d req=%d", n, m, req)
					require.NoError(t, CheckDense(dst), "dest n=%d m=%d req=%d", n, m, req)
					assert.Equal(t, Clamp(req, 1, m+1), plan.Target)
				}
			}
		}
	}
}

func TestCheckDense(t *testing.T) {
	assert.NoError(t, CheckDense(nil))
	assert.NoError(t, CheckDense([]int{3, 1, 2}))
	assert.ErrorIs(t, CheckDense([]int{1, 1, 2}), types.ErrDensity)
	assert.ErrorIs(t, CheckDense([]int{1, 3}), types.ErrDensity)
	assert.ErrorIs(t, CheckDense([]int{0, 1}), types.ErrDensity)
}
