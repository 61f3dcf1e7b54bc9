package sqlite

// Schema DDL. Timestamps are RFC 3339 text. The (column_id, ordinal) index is
// not unique because SQLite checks unique constraints row by row and a shift
// passes through transient duplicates; density is enforced by the ranking
// engine and verified by CheckDense.
const (
	createProjects = `CREATE TABLE IF NOT EXISTS projects (
    project_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createColumns = `CREATE TABLE IF NOT EXISTS columns (
    column_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(project_id)
);`

	createTasks = `CREATE TABLE IF NOT EXISTS tasks (
    task_id TEXT PRIMARY KEY,
    column_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL CHECK (ordinal >= 1),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (column_id) REFERENCES columns(column_id)
);`
)

const (
	idxColumnsProject = `CREATE INDEX IF NOT EXISTS idx_columns_project ON columns(project_id);`
	idxTasksOrdinal   = `CREATE INDEX IF NOT EXISTS idx_tasks_column_ordinal ON tasks(column_id, ordinal);`
)

// schemaDDL lists all statements in dependency order.
var schemaDDL = []string{
	createProjects,
	createColumns,
	createTasks,
	idxColumnsProject,
	idxTasksOrdinal,
}
