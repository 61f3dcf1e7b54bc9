package types

import (
	"strings"
	"time"
)

// Task is an ordered item inside a column. Ordinal is its 1-based rank among
// the tasks of ColumnID. The ranking engine is the only writer of ColumnID
// and Ordinal; Title and Description are payload it never inspects.
type Task struct {
	TaskID      string    `json:"task_id"`
	ColumnID    string    `json:"column_id"`
	Ordinal     int       `json:"ordinal"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskData carries the payload of a task being appended.
type TaskData struct {
	Title       string
	Description string
}

// Validate checks that the payload can be stored.
func (d TaskData) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrInvalidTitle
	}
	return nil
}

// TaskPatch describes a payload update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
}

// Apply updates the task payload from p. Returns ErrNothingToUpdate when p
// sets no field and ErrInvalidTitle when it would blank the title.
// Ordering fields are never modified.
func (t *Task) Apply(p TaskPatch) error {
	if p.Title == nil && p.Description == nil {
		return ErrNothingToUpdate
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return ErrInvalidTitle
		}
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}
