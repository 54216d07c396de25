package utils

import (
	"context"
	"fmt"

	"taskboard/models"

	"github.com/jackc/pgx/v5"
)

const subtaskColumns = "id, task_id, title, is_completed, position, created_at, updated_at"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanSubtask(row pgx.Row) (models.Subtask, error) {
	var st models.Subtask
	err := row.Scan(&st.ID, &st.TaskID, &st.Title, &st.IsCompleted, &st.Position, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

func collectSubtask(row pgx.CollectableRow) (models.Subtask, error) {
	return scanSubtask(row)
}

func (s *Store) listSubtasks(ctx context.Context, q querier, taskID int64) ([]models.Subtask, error) {
	stmt := "SELECT " + subtaskColumns + " FROM subtasks WHERE task_id = $1 ORDER BY position, id"
	rows, err := q.Query(ctx, stmt, taskID)
	if err != nil {
		return nil, fmt.Errorf("error querying subtasks: %w", err)
	}
	subtasks, err := pgx.CollectRows(rows, collectSubtask)
	if err != nil {
		return nil, fmt.Errorf("error processing subtasks: %w", err)
	}
	if subtasks == nil {
		subtasks = []models.Subtask{}
	}
	return subtasks, nil
}

// ownsTask reports ErrNotFound unless the live task belongs to userID.
func ownsTask(ctx context.Context, q rowQuerier, userID string, taskID int64, lock bool) error {
	stmt := "SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL"
	if lock {
		stmt += " FOR UPDATE"
	}
	var one int
	return notFound(q.QueryRow(ctx, stmt, taskID, userID).Scan(&one))
}

func (s *Store) ListSubtasks(ctx context.Context, userID string, taskID int64) ([]models.Subtask, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := ownsTask(ctx, s.db, userID, taskID, false); err != nil {
		return nil, err
	}
	return s.listSubtasks(ctx, s.db, taskID)
}

func (s *Store) CreateSubtask(ctx context.Context, userID string, taskID int64, title string) (*models.Subtask, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var created models.Subtask
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ownsTask(ctx, tx, userID, taskID, true); err != nil {
			return err
		}
		stmt := `INSERT INTO subtasks (task_id, title, position)
			VALUES ($1, $2, (SELECT COUNT(*) FROM subtasks WHERE task_id = $1))
			RETURNING ` + subtaskColumns
		var err error
		created, err = scanSubtask(tx.QueryRow(ctx, stmt, taskID, title))
		if err != nil {
			return fmt.Errorf("failed to save subtask: %w", err)
		}
		if err := touchTask(ctx, tx, taskID); err != nil {
			return err
		}
		return logActivity(ctx, tx, userID, &taskID, models.ActionCreateSubtask, title)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateSubtask(ctx context.Context, userID string, taskID, subtaskID int64, patch models.SubtaskPatch) (*models.Subtask, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var updated models.Subtask
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ownsTask(ctx, tx, userID, taskID, true); err != nil {
			return err
		}
		stmt := `UPDATE subtasks SET title = COALESCE($1, title), is_completed = COALESCE($2, is_completed), updated_at = NOW()
			WHERE id = $3 AND task_id = $4 RETURNING ` + subtaskColumns
		var err error
		updated, err = scanSubtask(tx.QueryRow(ctx, stmt, patch.Title, patch.Completed, subtaskID, taskID))
		if err != nil {
			return notFound(err)
		}
		if err := touchTask(ctx, tx, taskID); err != nil {
			return err
		}
		return logActivity(ctx, tx, userID, &taskID, models.ActionUpdateSubtask, updated.Title)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteSubtask(ctx context.Context, userID string, taskID, subtaskID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ownsTask(ctx, tx, userID, taskID, true); err != nil {
			return err
		}
		var (
			position int
			title    string
		)
		stmt := "DELETE FROM subtasks WHERE id = $1 AND task_id = $2 RETURNING position, title"
		if err := tx.QueryRow(ctx, stmt, subtaskID, taskID).Scan(&position, &title); err != nil {
			return notFound(err)
		}
		stmt = "UPDATE subtasks SET position = position - 1 WHERE task_id = $1 AND position > $2"
		if _, err := tx.Exec(ctx, stmt, taskID, position); err != nil {
			return fmt.Errorf("error closing gap: %w", err)
		}
		if err := touchTask(ctx, tx, taskID); err != nil {
			return err
		}
		return logActivity(ctx, tx, userID, &taskID, models.ActionDeleteSubtask, title)
	})
}

// touchTask bumps the parent's version so stale clients see the subtask change.
func touchTask(ctx context.Context, tx pgx.Tx, taskID int64) error {
	if _, err := tx.Exec(ctx, "UPDATE tasks SET version = version + 1, updated_at = NOW() WHERE id = $1", taskID); err != nil {
		return fmt.Errorf("error touching task: %w", err)
	}
	return nil
}
