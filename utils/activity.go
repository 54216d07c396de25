package utils

import (
	"context"
	"fmt"

	"taskboard/models"

	"github.com/jackc/pgx/v5"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

func logActivity(ctx context.Context, tx pgx.Tx, userID string, taskID *int64, action models.Action, details string) error {
	stmt := "INSERT INTO activity_logs (user_id, task_id, action, details) VALUES ($1, $2, $3, $4)"
	if _, err := tx.Exec(ctx, stmt, userID, taskID, action, details); err != nil {
		return fmt.Errorf("error writing activity log: %w", err)
	}
	return nil
}

// ActivityLimit bounds a requested page size.
func ActivityLimit(limit int) int {
	if limit <= 0 {
		return DefaultActivityLimit
	}
	return min(limit, MaxActivityLimit)
}

func (s *Store) ListActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := `SELECT id, user_id, task_id, action, details, created_at FROM activity_logs
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := s.db.Query(ctx, stmt, userID, ActivityLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying activity: %w", err)
	}
	logs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ActivityLog])
	if err != nil {
		return nil, fmt.Errorf("error processing activity: %w", err)
	}
	if logs == nil {
		logs = []models.ActivityLog{}
	}
	return logs, nil
}
