package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"taskboard/auth"
	"taskboard/logging"
	"taskboard/models"
	"taskboard/utils"
)

const resetCodeTTL = 15 * time.Minute

type authResponse struct {
	User *models.User `json:"user"`
	*auth.Credentials
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	DisplayName     string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email           string `json:"email"`
	Code            string `json:"code"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	creds, err := h.Auth.Issue(w, r, user.ID.String())
	if err != nil {
		logging.Logger.Errorf("Event ID: AUTH_ISSUE_FAILED, Description: issuing credentials for user %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, status, authResponse{User: user, Credentials: creds})
}

// Register creates an account. A caller authenticated as a guest has the
// guest account upgraded in place so the board survives.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if err := utils.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !utils.SamePassword(req.Password, req.ConfirmPassword) {
		writeError(w, http.StatusBadRequest, "passwords must match")
		return
	}
	if err := utils.ValidateDisplayName(req.DisplayName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	inUse, err := h.Users.EmailInUse(ctx, req.Email)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if inUse {
		writeError(w, http.StatusConflict, utils.ErrEmailInUse.Error())
		return
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		logging.Logger.Errorf("Event ID: PASSWORD_HASH_FAILED, Description: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var user *models.User
	if id := auth.FromContext(ctx); id != nil {
		current, err := h.Users.GetUserByID(ctx, id.UserID)
		if err != nil {
			storeError(w, r, err, "user not found")
			return
		}
		if !current.Temporary {
			writeError(w, http.StatusBadRequest, "already signed in to a registered account")
			return
		}
		user, err = h.Users.UpgradeTemporaryUser(ctx, id.UserID, req.Email, passwordHash, req.DisplayName)
		if err != nil {
			storeError(w, r, err, "user not found")
			return
		}
		// the guest credentials are replaced by the ones issued below
		if err := h.Auth.Revoke(w, r, id); err != nil {
			logging.Logger.Warnf("Event ID: AUTH_REVOKE_FAILED, Description: revoking guest credentials for %s: %v", id.UserID, err)
		}
		logging.Logger.Infof("Event ID: GUEST_UPGRADED, Description: guest account %s registered", user.ID)
	} else {
		user, err = h.Users.CreateUser(ctx, req.Email, passwordHash, req.DisplayName)
		if err != nil {
			storeError(w, r, err, "")
			return
		}
		logging.Logger.Infof("Event ID: USER_REGISTERED, Description: user %s registered", user.ID)
	}

	h.issue(w, r, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	ctx := r.Context()
	user, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidCredentials) {
			logging.Logger.Warnf("Event ID: LOGIN_FAILED, Description: invalid credentials from %s", utils.GetIP(r))
		}
		storeError(w, r, err, "")
		return
	}
	if err := h.Users.UpdateLastActivity(ctx, user.ID.String()); err != nil {
		logging.Logger.Warnf("Event ID: LAST_ACTIVITY_UPDATE_FAILED, Description: %v", err)
	}

	h.issue(w, r, http.StatusOK, user)
}

// Guest starts a temporary account so the board can be used before registering.
func (h *Handler) Guest(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.CreateTemporaryUser(r.Context())
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	logging.Logger.Infof("Event ID: GUEST_CREATED, Description: temporary user %s created", user.ID)
	h.issue(w, r, http.StatusCreated, user)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUserByID(r.Context(), userID(r))
	if errors.Is(err, utils.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if err := h.Auth.Revoke(w, r, id); err != nil {
		logging.Logger.Errorf("Event ID: LOGOUT_FAILED, Description: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword mails a reset code. It answers 202 whether or not the
// address is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := utils.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	ctx := r.Context()
	user, err := h.Users.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		storeError(w, r, err, "")
		return
	}
	if user == nil || user.PasswordHash == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	code, err := utils.GenerateResetCode()
	if err != nil {
		logging.Logger.Errorf("Event ID: RESET_CODE_FAILED, Description: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.Resets.SetResetCode(ctx, req.Email, code, resetCodeTTL); err != nil {
		logging.Logger.Errorf("Event ID: RESET_CODE_STORE_FAILED, Description: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.Mailer.SendResetCode(ctx, req.Email, code); err != nil {
		logging.Logger.Errorf("Event ID: RESET_MAIL_FAILED, Description: sending reset code to user %s: %v", user.ID, err)
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !utils.SamePassword(req.Password, req.ConfirmPassword) {
		writeError(w, http.StatusBadRequest, "passwords must match")
		return
	}

	ctx := r.Context()
	ok, err := h.Resets.ConsumeResetCode(ctx, req.Email, strings.TrimSpace(req.Code))
	if err != nil {
		logging.Logger.Errorf("Event ID: RESET_CODE_CHECK_FAILED, Description: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid or expired code")
		return
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		logging.Logger.Errorf("Event ID: PASSWORD_HASH_FAILED, Description: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	user, err := h.Users.ChangePassword(ctx, req.Email, passwordHash)
	if err != nil {
		storeError(w, r, err, "user not found")
		return
	}
	if err := h.Auth.RevokeAll(ctx, user.ID.String()); err != nil {
		logging.Logger.Errorf("Event ID: REVOKE_ALL_FAILED, Description: user %s: %v", user.ID, err)
	}

	logging.Logger.Infof("Event ID: PASSWORD_RESET, Description: password changed for user %s", user.ID)
	w.WriteHeader(http.StatusNoContent)
}
