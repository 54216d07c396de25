package handlers

import (
	"errors"
	"net/http"
	"strings"

	"taskboard/logging"
	"taskboard/models"
	"taskboard/utils"
)

const taskNotFound = "task not found"

type conflictResponse struct {
	Error   string       `json:"error"`
	Current *models.Task `json:"current"`
}

func validateNewTask(in *models.NewTask) error {
	in.Title = strings.TrimSpace(in.Title)
	if err := utils.ValidateTaskInput(in.Title); err != nil {
		return err
	}
	if err := utils.ValidateDescription(in.Description); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = models.StatusTodo
	}
	if !in.Status.Valid() {
		return errors.New("invalid status")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return errors.New("invalid priority")
	}
	return nil
}

func validatePatch(p *models.TaskPatch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err := utils.ValidateTaskInput(title); err != nil {
			return err
		}
		p.Title = &title
	}
	if p.Description != nil {
		if err := utils.ValidateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return errors.New("invalid status")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return errors.New("invalid priority")
	}
	if p.ClearDueDate && p.DueDate != nil {
		return errors.New("dueDate and clearDueDate are mutually exclusive")
	}
	return nil
}

// ListTasks returns the caller's board grouped by column.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	board, err := h.Tasks.GetBoard(r.Context(), userID(r))
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in models.NewTask
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateNewTask(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.Tasks.CreateTask(r.Context(), userID(r), in)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := h.Tasks.GetTask(r.Context(), userID(r), id)
	if err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update. A stale version yields 409 with the
// stored task so the client can reconcile.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch models.TaskPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validatePatch(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.Tasks.UpdateTask(r.Context(), userID(r), id, patch)
	if errors.Is(err, utils.ErrConflict) && task != nil {
		logging.Logger.Infof("Event ID: TASK_VERSION_CONFLICT, Description: task %d is at version %d", id, task.Version)
		writeJSON(w, http.StatusConflict, conflictResponse{Error: err.Error(), Current: task})
		return
	}
	if err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Tasks.DeleteTask(r.Context(), userID(r), id); err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreTask undoes a delete made within the undo window.
func (h *Handler) RestoreTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := h.Tasks.RestoreTask(r.Context(), userID(r), id, h.UndoWindow)
	if err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) MoveTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var move models.Move
	if err := decodeJSON(w, r, &move); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !move.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if move.Position < 0 {
		writeError(w, http.StatusBadRequest, "position must not be negative")
		return
	}

	task, err := h.Tasks.MoveTask(r.Context(), userID(r), id, move)
	if err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ReorderTasks sets the order of a whole column.
func (h *Handler) ReorderTasks(w http.ResponseWriter, r *http.Request) {
	var reorder models.Reorder
	if err := decodeJSON(w, r, &reorder); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !reorder.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if err := h.Tasks.ReorderColumn(r.Context(), userID(r), reorder); err != nil {
		storeError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
