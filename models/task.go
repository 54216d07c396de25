package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the board column a task lives in.
type Status string

const (
	StatusTodo     Status = "todo"
	StatusProgress Status = "progress"
	StatusDone     Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusProgress, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusProgress, StatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          int64     `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"userId"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Status      Status    `db:"status" json:"status"`
	Priority    Priority  `db:"priority" json:"priority"`
	Position    int       `db:"position" json:"position"`
	DueDate     *Date     `db:"due_date" json:"dueDate,omitempty"`
	Version     int       `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
	Subtasks    []Subtask `db:"-" json:"subtasks"`
}

// NewTask is the payload accepted when creating a task.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	DueDate     *Date    `json:"dueDate"`
}

// TaskPatch holds the fields of a partial update. Nil fields are left unchanged.
// Version, when set, must match the stored version.
type TaskPatch struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Status       *Status   `json:"status"`
	Priority     *Priority `json:"priority"`
	DueDate      *Date     `json:"dueDate"`
	ClearDueDate bool      `json:"clearDueDate"`
	Version      *int      `json:"version"`
}

// Move is a drag-and-drop of one card into a column at a position.
type Move struct {
	Status   Status `json:"status"`
	Position int    `json:"position"`
}

// Reorder sets the full order of one column.
type Reorder struct {
	Status Status  `json:"status"`
	IDs    []int64 `json:"ids"`
}
