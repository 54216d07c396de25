package models

import "time"

type Subtask struct {
	ID          int64     `db:"id" json:"id"`
	TaskID      int64     `db:"task_id" json:"taskId"`
	Title       string    `db:"title" json:"title"`
	IsCompleted bool      `db:"is_completed" json:"completed"`
	Position    int       `db:"position" json:"position"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type SubtaskPatch struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}
