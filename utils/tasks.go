package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/models"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

const taskColumns = "id, user_id, title, description, status, priority, position, due_date, version, created_at, updated_at"

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Position, &t.DueDate, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func collectTask(row pgx.CollectableRow) (models.Task, error) {
	return scanTask(row)
}

// GroupBoard splits tasks into the three board columns, keeping their order.
func GroupBoard(tasks []models.Task) models.Board {
	board := models.Board{
		Todo:     []models.Task{},
		Progress: []models.Task{},
		Done:     []models.Task{},
	}
	for _, task := range tasks {
		switch task.Status {
		case models.StatusTodo:
			board.Todo = append(board.Todo, task)
		case models.StatusProgress:
			board.Progress = append(board.Progress, task)
		case models.StatusDone:
			board.Done = append(board.Done, task)
		}
	}
	return board
}

// ListTasks returns the user's live tasks ordered by column and position, with subtasks attached.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		tasks    []models.Task
		subtasks []models.Subtask
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stmt := "SELECT " + taskColumns + ` FROM tasks WHERE user_id = $1 AND deleted_at IS NULL
			ORDER BY status, position, id`
		rows, err := s.db.Query(gctx, stmt, userID)
		if err != nil {
			return fmt.Errorf("error querying tasks: %w", err)
		}
		tasks, err = pgx.CollectRows(rows, collectTask)
		if err != nil {
			return fmt.Errorf("error processing tasks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		stmt := `SELECT s.id, s.task_id, s.title, s.is_completed, s.position, s.created_at, s.updated_at
			FROM subtasks s JOIN tasks t ON t.id = s.task_id
			WHERE t.user_id = $1 AND t.deleted_at IS NULL
			ORDER BY s.task_id, s.position, s.id`
		rows, err := s.db.Query(gctx, stmt, userID)
		if err != nil {
			return fmt.Errorf("error querying subtasks: %w", err)
		}
		subtasks, err = pgx.CollectRows(rows, collectSubtask)
		if err != nil {
			return fmt.Errorf("error processing subtasks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	attachSubtasks(tasks, subtasks)
	return tasks, nil
}

func attachSubtasks(tasks []models.Task, subtasks []models.Subtask) {
	byTask := make(map[int64][]models.Subtask, len(tasks))
	for _, st := range subtasks {
		byTask[st.TaskID] = append(byTask[st.TaskID], st)
	}
	for i := range tasks {
		tasks[i].Subtasks = byTask[tasks[i].ID]
		if tasks[i].Subtasks == nil {
			tasks[i].Subtasks = []models.Subtask{}
		}
	}
}

func (s *Store) GetBoard(ctx context.Context, userID string) (models.Board, error) {
	tasks, err := s.ListTasks(ctx, userID)
	if err != nil {
		return models.Board{}, err
	}
	return GroupBoard(tasks), nil
}

func (s *Store) GetTask(ctx context.Context, userID string, taskID int64) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := "SELECT " + taskColumns + " FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL"
	t, err := scanTask(s.db.QueryRow(ctx, stmt, taskID, userID))
	if err != nil {
		return nil, notFound(err)
	}

	subtasks, err := s.listSubtasks(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}
	t.Subtasks = subtasks
	return &t, nil
}

// lockBoard serialises position changes on one user's board until tx ends.
// Counting and shifting a column touches rows besides the task being changed.
func lockBoard(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", userID); err != nil {
		return fmt.Errorf("error locking board: %w", err)
	}
	return nil
}

// lockTask fetches a live task row for update inside tx.
func lockTask(ctx context.Context, tx pgx.Tx, userID string, taskID int64) (models.Task, error) {
	stmt := "SELECT " + taskColumns + " FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL FOR UPDATE"
	t, err := scanTask(tx.QueryRow(ctx, stmt, taskID, userID))
	if err != nil {
		return t, notFound(err)
	}
	return t, nil
}

// columnLength counts the live tasks in a column, optionally ignoring one task.
func columnLength(ctx context.Context, tx pgx.Tx, userID string, status models.Status, excludeID int64) (int, error) {
	var n int
	stmt := "SELECT COUNT(*) FROM tasks WHERE user_id = $1 AND status = $2 AND deleted_at IS NULL AND id <> $3"
	if err := tx.QueryRow(ctx, stmt, userID, status, excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting column: %w", err)
	}
	return n, nil
}

// closeGap shifts up every card below position once a card has left the column.
func closeGap(ctx context.Context, tx pgx.Tx, userID string, status models.Status, position int, excludeID int64) error {
	stmt := `UPDATE tasks SET position = position - 1
		WHERE user_id = $1 AND status = $2 AND position > $3 AND deleted_at IS NULL AND id <> $4`
	if _, err := tx.Exec(ctx, stmt, userID, status, position, excludeID); err != nil {
		return fmt.Errorf("error closing gap: %w", err)
	}
	return nil
}

// openGap shifts down every card at or below position to make room for one more.
func openGap(ctx context.Context, tx pgx.Tx, userID string, status models.Status, position int, excludeID int64) error {
	stmt := `UPDATE tasks SET position = position + 1
		WHERE user_id = $1 AND status = $2 AND position >= $3 AND deleted_at IS NULL AND id <> $4`
	if _, err := tx.Exec(ctx, stmt, userID, status, position, excludeID); err != nil {
		return fmt.Errorf("error opening gap: %w", err)
	}
	return nil
}

// ClampPosition bounds a requested drop position to a column holding n other cards.
func ClampPosition(position, n int) int {
	if position < 0 {
		return 0
	}
	if position > n {
		return n
	}
	return position
}

func (s *Store) CreateTask(ctx context.Context, userID string, in models.NewTask) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var created models.Task
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockBoard(ctx, tx, userID); err != nil {
			return err
		}
		position, err := columnLength(ctx, tx, userID, in.Status, 0)
		if err != nil {
			return err
		}

		stmt := `INSERT INTO tasks (user_id, title, description, status, priority, position, due_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING ` + taskColumns
		created, err = scanTask(tx.QueryRow(ctx, stmt, userID, in.Title, in.Description, in.Status, in.Priority, position, in.DueDate))
		if err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		return logActivity(ctx, tx, userID, &created.ID, models.ActionCreateTask, created.Title)
	})
	if err != nil {
		return nil, err
	}
	created.Subtasks = []models.Subtask{}
	return &created, nil
}

// UpdateTask applies a partial update. On a stale version it returns the
// current row together with ErrConflict.
func (s *Store) UpdateTask(ctx context.Context, userID string, taskID int64, patch models.TaskPatch) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		updated models.Task
		current models.Task
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockBoard(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		current, err = lockTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if patch.Version != nil && *patch.Version != current.Version {
			return ErrConflict
		}

		next := current
		var changed []string
		if patch.Title != nil && *patch.Title != current.Title {
			next.Title = *patch.Title
			changed = append(changed, "title")
		}
		if patch.Description != nil && *patch.Description != current.Description {
			next.Description = *patch.Description
			changed = append(changed, "description")
		}
		if patch.Priority != nil && *patch.Priority != current.Priority {
			next.Priority = *patch.Priority
			changed = append(changed, "priority")
		}
		if patch.ClearDueDate {
			next.DueDate = nil
			changed = append(changed, "dueDate")
		} else if patch.DueDate != nil {
			next.DueDate = patch.DueDate
			changed = append(changed, "dueDate")
		}
		if patch.Status != nil && *patch.Status != current.Status {
			next.Status = *patch.Status
			changed = append(changed, "status")
			if err := closeGap(ctx, tx, userID, current.Status, current.Position, taskID); err != nil {
				return err
			}
			if next.Position, err = columnLength(ctx, tx, userID, next.Status, taskID); err != nil {
				return err
			}
		}

		if len(changed) == 0 {
			updated = current
			return nil
		}

		stmt := `UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4, position = $5,
			due_date = $6, version = version + 1, updated_at = NOW()
			WHERE id = $7 RETURNING ` + taskColumns
		updated, err = scanTask(tx.QueryRow(ctx, stmt, next.Title, next.Description, next.Status, next.Priority, next.Position, next.DueDate, taskID))
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return logActivity(ctx, tx, userID, &taskID, models.ActionUpdateTask, strings.Join(changed, ","))
	})
	if errors.Is(err, ErrConflict) {
		if current.Subtasks, err = s.listSubtasks(ctx, s.db, taskID); err != nil {
			return nil, err
		}
		return &current, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	if updated.Subtasks, err = s.listSubtasks(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	return &updated, nil
}

// MoveTask drops a card into a column at a position, reindexing both columns.
func (s *Store) MoveTask(ctx context.Context, userID string, taskID int64, move models.Move) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var moved models.Task
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockBoard(ctx, tx, userID); err != nil {
			return err
		}
		current, err := lockTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}

		n, err := columnLength(ctx, tx, userID, move.Status, taskID)
		if err != nil {
			return err
		}
		position := ClampPosition(move.Position, n)

		if err := closeGap(ctx, tx, userID, current.Status, current.Position, taskID); err != nil {
			return err
		}
		if err := openGap(ctx, tx, userID, move.Status, position, taskID); err != nil {
			return err
		}

		stmt := `UPDATE tasks SET status = $1, position = $2, version = version + 1, updated_at = NOW()
			WHERE id = $3 RETURNING ` + taskColumns
		moved, err = scanTask(tx.QueryRow(ctx, stmt, move.Status, position, taskID))
		if err != nil {
			return fmt.Errorf("failed to move task: %w", err)
		}
		details := fmt.Sprintf("%s:%d -> %s:%d", current.Status, current.Position, moved.Status, moved.Position)
		return logActivity(ctx, tx, userID, &taskID, models.ActionMoveTask, details)
	})
	if err != nil {
		return nil, err
	}

	if moved.Subtasks, err = s.listSubtasks(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	return &moved, nil
}

// ValidateOrder checks that requested is a permutation of existing.
func ValidateOrder(existing, requested []int64) error {
	if len(existing) != len(requested) {
		return ErrInvalidOrder
	}
	want := make(map[int64]bool, len(existing))
	for _, id := range existing {
		want[id] = true
	}
	for _, id := range requested {
		if !want[id] {
			return ErrInvalidOrder
		}
		delete(want, id)
	}
	return nil
}

// ReorderColumn rewrites the positions of a whole column in the given order.
func (s *Store) ReorderColumn(ctx context.Context, userID string, reorder models.Reorder) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockBoard(ctx, tx, userID); err != nil {
			return err
		}
		stmt := "SELECT id FROM tasks WHERE user_id = $1 AND status = $2 AND deleted_at IS NULL ORDER BY position FOR UPDATE"
		rows, err := tx.Query(ctx, stmt, userID, reorder.Status)
		if err != nil {
			return fmt.Errorf("error querying column: %w", err)
		}
		existing, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("error processing column: %w", err)
		}
		if err := ValidateOrder(existing, reorder.IDs); err != nil {
			return err
		}

		stmt = `UPDATE tasks SET position = o.ord - 1, version = version + 1, updated_at = NOW()
			FROM unnest($1::bigint[]) WITH ORDINALITY AS o(id, ord)
			WHERE tasks.id = o.id AND tasks.user_id = $2 AND tasks.position <> o.ord - 1`
		if _, err := tx.Exec(ctx, stmt, reorder.IDs, userID); err != nil {
			return fmt.Errorf("error reordering column: %w", err)
		}
		return logActivity(ctx, tx, userID, nil, models.ActionReorderTasks, string(reorder.Status))
	})
}

// DeleteTask soft-deletes a task so it can be restored within the undo window.
func (s *Store) DeleteTask(ctx context.Context, userID string, taskID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockBoard(ctx, tx, userID); err != nil {
			return err
		}
		current, err := lockTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		stmt := "UPDATE tasks SET deleted_at = NOW(), version = version + 1, updated_at = NOW() WHERE id = $1"
		if _, err := tx.Exec(ctx, stmt, taskID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if err := closeGap(ctx, tx, userID, current.Status, current.Position, taskID); err != nil {
			return err
		}
		return logActivity(ctx, tx, userID, &taskID, models.ActionDeleteTask, current.Title)
	})
}

// RestoreTask undoes a delete made less than window ago. The task is put back
// at the end of its column.
func (s *Store) RestoreTask(ctx context.Context, userID string, taskID int64, window time.Duration) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var restored models.Task
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockBoard(ctx, tx, userID); err != nil {
			return err
		}
		var (
			status models.Status
			within bool
		)
		stmt := `SELECT status, deleted_at >= NOW() - make_interval(secs => $3)
			FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NOT NULL FOR UPDATE`
		if err := tx.QueryRow(ctx, stmt, taskID, userID, window.Seconds()).Scan(&status, &within); err != nil {
			return notFound(err)
		}
		if !within {
			return ErrUndoExpired
		}

		position, err := columnLength(ctx, tx, userID, status, taskID)
		if err != nil {
			return err
		}
		stmt = `UPDATE tasks SET deleted_at = NULL, position = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 RETURNING ` + taskColumns
		restored, err = scanTask(tx.QueryRow(ctx, stmt, position, taskID))
		if err != nil {
			return fmt.Errorf("failed to restore task: %w", err)
		}
		return logActivity(ctx, tx, userID, &taskID, models.ActionRestoreTask, restored.Title)
	})
	if err != nil {
		return nil, err
	}

	if restored.Subtasks, err = s.listSubtasks(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	return &restored, nil
}
