// Package ranking keeps the ordinals of the tasks in every column dense.
//
// For every column holding N tasks, the ordinals of those tasks are exactly
// 1..N. The Engine preserves this across its four mutating operations
// (Append, Remove, Reposition, Transfer). Each operation reads the affected
// columns inside one transaction, asks the planner in plan.go which sibling
// rows have to shift, and writes the whole shift set before the transaction
// commits. The planner is pure: it maps an ordinal set and the operation
// parameters to a list of assignments without touching storage.
//
// Out-of-range ordinals are never rejected. Reposition clamps into [1, N]
// and Transfer clamps into [1, M+1] where M is the destination size.
//
// The engine performs no ownership checks; callers pass handles they have
// already authorized.
package ranking
