package postgres

// The ordinal uniqueness constraint is checked at commit so that a batch of
// shifts may pass through intermediate duplicates.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS columns (
		column_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(project_id),
		title TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		task_id TEXT PRIMARY KEY,
		column_id TEXT NOT NULL REFERENCES columns(column_id),
		ordinal INTEGER NOT NULL CHECK (ordinal >= 1),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT tasks_column_ordinal_key UNIQUE (column_id, ordinal) DEFERRABLE INITIALLY DEFERRED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_columns_project ON columns(project_id)`,
}
