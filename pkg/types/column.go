package types

import "time"

// Column groups tasks of a project into one ordered list.
type Column struct {
	ColumnID  string    `json:"column_id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is the parent scope of a set of columns.
type Project struct {
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
