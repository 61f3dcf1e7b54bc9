// Package sqlstore implements the types.Store and types.Tx contracts over
// database/sql. The SQLite and Postgres backends share this code and differ
// only in their Dialect: placeholder syntax, row-lock clauses, timestamp
// encoding and which driver errors count as transient.
//
// Every write happens inside the transaction opened by RunInTx. A deferred
// rollback guards every exit path, including panics, and is a no-op once the
// transaction has committed.
package sqlstore
