package handlers

import (
	"net/http"
	"strings"

	"taskboard/auth"
	"taskboard/logging"
	"taskboard/utils"
)

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

// UpdateProfile changes the caller's display name.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if err := utils.ValidateDisplayName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Users.UpdateDisplayName(r.Context(), userID(r), name)
	if err != nil {
		storeError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteAccount removes the caller together with every task, subtask and log entry.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(r)

	if err := h.Users.DeleteUser(ctx, uid); err != nil {
		storeError(w, r, err, "user not found")
		return
	}
	if err := h.Auth.RevokeAll(ctx, uid); err != nil {
		logging.Logger.Errorf("Event ID: REVOKE_ALL_FAILED, Description: user %s: %v", uid, err)
	}
	if err := h.Auth.Revoke(w, r, auth.FromContext(ctx)); err != nil {
		logging.Logger.Warnf("Event ID: AUTH_REVOKE_FAILED, Description: user %s: %v", uid, err)
	}

	logging.Logger.Infof("Event ID: ACCOUNT_DELETED, Description: user %s deleted", uid)
	w.WriteHeader(http.StatusNoContent)
}
