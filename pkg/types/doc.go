// Package types defines the board entities (projects, columns, tasks), the
// Store and Tx contracts that storage backends implement, and the standard
// error values shared by every layer of the boards module.
//
// A Store is the transaction coordinator: RunInTx opens one atomic unit and
// hands the callback a Tx, which is the repository view used by the ranking
// engine. Backends live under internal/ (memory, sqlite, postgres).
package types
