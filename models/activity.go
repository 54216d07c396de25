package models

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreateTask    Action = "create_task"
	ActionUpdateTask    Action = "update_task"
	ActionMoveTask      Action = "move_task"
	ActionDeleteTask    Action = "delete_task"
	ActionRestoreTask   Action = "restore_task"
	ActionReorderTasks  Action = "reorder_tasks"
	ActionCreateSubtask Action = "create_subtask"
	ActionUpdateSubtask Action = "update_subtask"
	ActionDeleteSubtask Action = "delete_subtask"
)

type ActivityLog struct {
	ID        int64     `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	TaskID    *int64    `db:"task_id" json:"taskId,omitempty"`
	Action    Action    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
