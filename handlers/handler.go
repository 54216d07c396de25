package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"taskboard/auth"
	"taskboard/logging"
	"taskboard/models"
	"taskboard/utils"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type UserStore interface {
	EmailInUse(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, email, passwordHash, displayName string) (*models.User, error)
	CreateTemporaryUser(ctx context.Context) (*models.User, error)
	UpgradeTemporaryUser(ctx context.Context, userID, email, passwordHash, displayName string) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) (*models.User, error)
	ChangePassword(ctx context.Context, email, passwordHash string) (*models.User, error)
	DeleteUser(ctx context.Context, userID string) error
	UpdateLastActivity(ctx context.Context, userID string) error
}

type TaskStore interface {
	GetBoard(ctx context.Context, userID string) (models.Board, error)
	GetTask(ctx context.Context, userID string, taskID int64) (*models.Task, error)
	CreateTask(ctx context.Context, userID string, in models.NewTask) (*models.Task, error)
	UpdateTask(ctx context.Context, userID string, taskID int64, patch models.TaskPatch) (*models.Task, error)
	MoveTask(ctx context.Context, userID string, taskID int64, move models.Move) (*models.Task, error)
	ReorderColumn(ctx context.Context, userID string, reorder models.Reorder) error
	DeleteTask(ctx context.Context, userID string, taskID int64) error
	RestoreTask(ctx context.Context, userID string, taskID int64, window time.Duration) (*models.Task, error)

	ListSubtasks(ctx context.Context, userID string, taskID int64) ([]models.Subtask, error)
	CreateSubtask(ctx context.Context, userID string, taskID int64, title string) (*models.Subtask, error)
	UpdateSubtask(ctx context.Context, userID string, taskID, subtaskID int64, patch models.SubtaskPatch) (*models.Subtask, error)
	DeleteSubtask(ctx context.Context, userID string, taskID, subtaskID int64) error

	ListActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error)
}

// ResetCodes stores one-time password reset codes.
type ResetCodes interface {
	SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error
	ConsumeResetCode(ctx context.Context, email, code string) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the REST API.
type Handler struct {
	Users      UserStore
	Tasks      TaskStore
	Resets     ResetCodes
	Auth       auth.Provider
	Mailer     utils.Mailer
	UndoWindow time.Duration
	// Checks are pinged by /healthz, keyed by dependency name.
	Checks map[string]Pinger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Errorf("Event ID: RESPONSE_ENCODE_FAILED, Description: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// userID returns the authenticated user. Routes using it sit behind RequireAuth.
func userID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}

// storeError maps storage errors onto HTTP responses.
func storeError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, utils.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, utils.ErrEmailInUse):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, utils.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, utils.ErrUndoExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, utils.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.Logger.Errorf("Event ID: STORE_ERROR, Description: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
