package handlers

import (
	"net/http"
	"strings"

	"taskboard/models"
	"taskboard/utils"
)

type subtaskRequest struct {
	Title string `json:"title"`
}

func (h *Handler) ListSubtasks(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subtasks, err := h.Tasks.ListSubtasks(r.Context(), userID(r), taskID)
	if err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, subtasks)
}

func (h *Handler) CreateSubtask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req subtaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if err := utils.ValidateTaskInput(title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subtask, err := h.Tasks.CreateSubtask(r.Context(), userID(r), taskID, title)
	if err != nil {
		storeError(w, r, err, taskNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, subtask)
}

func (h *Handler) UpdateSubtask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subtaskID, err := pathID(r, "subtaskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch models.SubtaskPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := utils.ValidateTaskInput(title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Title = &title
	}

	subtask, err := h.Tasks.UpdateSubtask(r.Context(), userID(r), taskID, subtaskID, patch)
	if err != nil {
		storeError(w, r, err, "subtask not found")
		return
	}
	writeJSON(w, http.StatusOK, subtask)
}

func (h *Handler) DeleteSubtask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subtaskID, err := pathID(r, "subtaskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Tasks.DeleteSubtask(r.Context(), userID(r), taskID, subtaskID); err != nil {
		storeError(w, r, err, "subtask not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
