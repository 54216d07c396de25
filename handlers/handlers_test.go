package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/auth"
	"taskboard/models"
	"taskboard/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "SecureP@ss123"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *memStore
	mailer  *recordingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redisStore := utils.NewRedisStore(client)

	store := newMemStore()
	mailer := &recordingMailer{}
	h := &Handler{
		Users:      store,
		Tasks:      store,
		Resets:     redisStore,
		Auth:       auth.NewJWTProvider(testSecret, time.Hour, false, redisStore),
		Mailer:     mailer,
		UndoWindow: 30 * time.Second,
		Checks:     map[string]Pinger{"redis": redisStore},
	}
	return &testServer{t: t, handler: NewRouter(h, "", "*"), store: store, mailer: mailer}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type authBody struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (s *testServer) register(email string) authBody {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":           email,
		"password":        testPassword,
		"confirmPassword": testPassword,
		"displayName":     "Ada",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authBody](s.t, rec)
}

func (s *testServer) createTask(token string, body map[string]any) models.Task {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/tasks", token, body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Task](s.t, rec)
}

func positions(col []models.Task) map[int64]int {
	out := map[int64]int{}
	for _, task := range col {
		out[task.ID] = task.Position
	}
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	reg := s.register("ada@example.com")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "Ada", reg.User.DisplayName)
	assert.False(t, reg.User.Temporary)

	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[authBody](t, rec)
	assert.Equal(t, reg.User.ID, login.User.ID)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reg.User.ID, decode[models.User](t, rec).ID)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	s.register("taken@example.com")

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{name: "bad email", body: map[string]string{"email": "nope", "password": testPassword, "confirmPassword": testPassword}, status: http.StatusBadRequest, msg: "invalid email address"},
		{name: "weak password", body: map[string]string{"email": "a@example.com", "password": "short", "confirmPassword": "short"}, status: http.StatusBadRequest, msg: "password must be at least 8 characters long"},
		{name: "mismatch", body: map[string]string{"email": "a@example.com", "password": testPassword, "confirmPassword": testPassword + "x"}, status: http.StatusBadRequest, msg: "passwords must match"},
		{name: "taken", body: map[string]string{"email": "taken@example.com", "password": testPassword, "confirmPassword": testPassword}, status: http.StatusConflict, msg: "already registered"},
		{name: "unknown field", body: `{"email":"a@example.com","admin":true}`, status: http.StatusBadRequest, msg: "invalid request payload"},
		{name: "malformed json", body: `{"email":`, status: http.StatusBadRequest, msg: "invalid request payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.msg)
		})
	}
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.register("ada@example.com")

	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "WrongP@ss123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/auth/me", "/api/tasks", "/api/tasks/1", "/api/activity"} {
		rec := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	}

	rec := s.do(http.MethodGet, "/api/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token

	rec := s.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/tasks", token, nil).Code)

	// logging out without credentials still clears cookies
	rec = s.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestGuestUpgradeKeepsTasks(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/auth/guest", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	guest := decode[authBody](t, rec)
	assert.True(t, guest.User.Temporary)

	task := s.createTask(guest.Token, map[string]any{"title": "Draft agenda"})

	rec = s.do(http.MethodPost, "/api/auth/register", guest.Token, map[string]string{
		"email":           "ada@example.com",
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	upgraded := decode[authBody](t, rec)
	assert.Equal(t, guest.User.ID, upgraded.User.ID)
	assert.False(t, upgraded.User.Temporary)

	rec = s.do(http.MethodGet, "/api/tasks", upgraded.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[models.Board](t, rec)
	require.Len(t, board.Todo, 1)
	assert.Equal(t, task.ID, board.Todo[0].ID)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/tasks", guest.Token, nil).Code, "the guest token is revoked")
}

func TestRegisterWhileSignedIn(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token

	rec := s.do(http.MethodPost, "/api/auth/register", token, map[string]string{
		"email":           "second@example.com",
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileAndDeleteAccount(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	s.createTask(token, map[string]any{"title": "Write report"})

	rec := s.do(http.MethodPatch, "/api/auth/me", token, map[string]string{"displayName": "  Ada L. "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada L.", decode[models.User](t, rec).DisplayName)

	rec = s.do(http.MethodPatch, "/api/auth/me", token, map[string]string{"displayName": "<script>"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.store.tasks)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", token, nil).Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.register("ada@example.com")

	rec := s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	_, sent := s.mailer.last()
	assert.False(t, sent, "unknown addresses get no mail")

	rec = s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	mail, ok := s.mailer.last()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", mail.email)
	assert.Len(t, mail.code, 6)

	const newPassword = "N3wP@ssword!"
	reset := func(code string) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
			"email":           "ada@example.com",
			"code":            code,
			"password":        newPassword,
			"confirmPassword": newPassword,
		})
	}

	wrong := "000000"
	if mail.code == wrong {
		wrong = "111111"
	}
	rec = reset(wrong)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired code")

	rec = reset(mail.code)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, reset(mail.code).Code, "codes are single use")

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": newPassword})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordHidesMailFailure(t *testing.T) {
	s := newTestServer(t)
	s.register("ada@example.com")
	s.mailer.err = utils.ErrMailUnavailable

	rec := s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestTaskCRUD(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token

	task := s.createTask(token, map[string]any{"title": "  Write report  ", "description": "Q3 numbers"})
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, 0, task.Position)
	assert.NotNil(t, task.Subtasks)

	rec := s.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, task.ID, decode[models.Task](t, rec).ID)

	rec = s.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d", task.ID), token, map[string]any{"priority": "high", "version": task.Version})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Task](t, rec)
	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, task.Version+1, updated.Version)

	rec = s.do(http.MethodGet, "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, mustField(t, rec, "progress"))
	assert.JSONEq(t, `[]`, mustField(t, rec, "done"))

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"task not found"}`, rec.Body.String())
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, name string) string {
	t.Helper()
	fields := decode[map[string]json.RawMessage](t, rec)
	raw, ok := fields[name]
	require.True(t, ok, "missing field %s", name)
	return string(raw)
}

func TestTaskValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	task := s.createTask(token, map[string]any{"title": "Write report"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "empty title", method: http.MethodPost, path: "/api/tasks", body: map[string]any{"title": " "}},
		{name: "bad status", method: http.MethodPost, path: "/api/tasks", body: map[string]any{"title": "x", "status": "archived"}},
		{name: "bad priority", method: http.MethodPost, path: "/api/tasks", body: map[string]any{"title": "x", "priority": "urgent"}},
		{name: "html description", method: http.MethodPost, path: "/api/tasks", body: map[string]any{"title": "x", "description": "<img>"}},
		{name: "patch bad status", method: http.MethodPatch, path: fmt.Sprintf("/api/tasks/%d", task.ID), body: map[string]any{"status": "archived"}},
		{name: "patch due date conflict", method: http.MethodPatch, path: fmt.Sprintf("/api/tasks/%d", task.ID), body: map[string]any{"dueDate": "2024-06-01T00:00:00Z", "clearDueDate": true}},
		{name: "unparseable due date", method: http.MethodPost, path: "/api/tasks", body: map[string]any{"title": "x", "dueDate": "next week"}},
		{name: "move bad status", method: http.MethodPatch, path: fmt.Sprintf("/api/tasks/%d/move", task.ID), body: map[string]any{"status": "nope", "position": 0}},
		{name: "move negative", method: http.MethodPatch, path: fmt.Sprintf("/api/tasks/%d/move", task.ID), body: map[string]any{"status": "done", "position": -1}},
		{name: "reorder bad status", method: http.MethodPut, path: "/api/tasks/reorder", body: map[string]any{"status": "nope", "ids": []int64{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestTaskDueDate(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token

	rec := s.do(http.MethodPost, "/api/tasks", token, map[string]any{"title": "Don't forget the report", "dueDate": "2026-10-20"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `"2026-10-20"`, mustField(t, rec, "dueDate"))
	task := decode[models.Task](t, rec)
	assert.Equal(t, "Don't forget the report", task.Title)

	path := fmt.Sprintf("/api/tasks/%d", task.ID)
	rec = s.do(http.MethodPatch, path, token, map[string]any{"dueDate": "2026-11-01T09:00:00Z"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `"2026-11-01"`, mustField(t, rec, "dueDate"))

	rec = s.do(http.MethodPatch, path, token, map[string]any{"clearDueDate": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode[map[string]json.RawMessage](t, rec), "dueDate")
}

func TestTasksAreIsolatedPerUser(t *testing.T) {
	s := newTestServer(t)
	owner := s.register("owner@example.com").Token
	other := s.register("other@example.com").Token
	task := s.createTask(owner, map[string]any{"title": "Private"})

	path := fmt.Sprintf("/api/tasks/%d", task.ID)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPatch, path, other, map[string]any{"title": "Mine"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path+"/subtasks", other, nil).Code)

	board := decode[models.Board](t, s.do(http.MethodGet, "/api/tasks", other, nil))
	assert.Empty(t, board.Todo)
}

func TestUpdateVersionConflict(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	task := s.createTask(token, map[string]any{"title": "Write report"})
	path := fmt.Sprintf("/api/tasks/%d", task.ID)

	rec := s.do(http.MethodPut, path, token, map[string]any{"title": "First edit", "version": task.Version})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPatch, path, token, map[string]any{"title": "Stale edit", "version": task.Version})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error   string      `json:"error"`
		Current models.Task `json:"current"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "version conflict", body.Error)
	assert.Equal(t, "First edit", body.Current.Title)
	assert.Equal(t, task.Version+1, body.Current.Version)
	assert.Contains(t, rec.Body.String(), `"subtasks":[]`)
}

func TestStatusChangeAppendsToColumn(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	a := s.createTask(token, map[string]any{"title": "A"})
	b := s.createTask(token, map[string]any{"title": "B"})
	done := s.createTask(token, map[string]any{"title": "Done already", "status": "done"})

	rec := s.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d", a.ID), token, map[string]any{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.Task](t, rec).Position)

	board := decode[models.Board](t, s.do(http.MethodGet, "/api/tasks", token, nil))
	assert.Equal(t, map[int64]int{b.ID: 0}, positions(board.Todo))
	assert.Equal(t, map[int64]int{done.ID: 0, a.ID: 1}, positions(board.Done))
}

func TestMoveTask(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	a := s.createTask(token, map[string]any{"title": "A"})
	b := s.createTask(token, map[string]any{"title": "B"})
	c := s.createTask(token, map[string]any{"title": "C"})
	p := s.createTask(token, map[string]any{"title": "P", "status": "progress"})

	rec := s.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/move", a.ID), token, map[string]any{"status": "progress", "position": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[models.Task](t, rec)
	assert.Equal(t, models.StatusProgress, moved.Status)
	assert.Equal(t, 0, moved.Position)

	board := decode[models.Board](t, s.do(http.MethodGet, "/api/tasks", token, nil))
	assert.Equal(t, map[int64]int{b.ID: 0, c.ID: 1}, positions(board.Todo))
	assert.Equal(t, map[int64]int{a.ID: 0, p.ID: 1}, positions(board.Progress))

	// positions past the end are clamped
	rec = s.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/move", b.ID), token, map[string]any{"status": "todo", "position": 99})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.Task](t, rec).Position)

	board = decode[models.Board](t, s.do(http.MethodGet, "/api/tasks", token, nil))
	assert.Equal(t, map[int64]int{c.ID: 0, b.ID: 1}, positions(board.Todo))

	rec = s.do(http.MethodPatch, "/api/tasks/999/move", token, map[string]any{"status": "done", "position": 0})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReorderColumn(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	a := s.createTask(token, map[string]any{"title": "A"})
	b := s.createTask(token, map[string]any{"title": "B"})
	c := s.createTask(token, map[string]any{"title": "C"})

	rec := s.do(http.MethodPut, "/api/tasks/reorder", token, map[string]any{"status": "todo", "ids": []int64{c.ID, a.ID, b.ID}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	board := decode[models.Board](t, s.do(http.MethodGet, "/api/tasks", token, nil))
	require.Len(t, board.Todo, 3)
	assert.Equal(t, []int64{c.ID, a.ID, b.ID}, []int64{board.Todo[0].ID, board.Todo[1].ID, board.Todo[2].ID})

	rec = s.do(http.MethodPut, "/api/tasks/reorder", token, map[string]any{"status": "todo", "ids": []int64{a.ID, b.ID}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), utils.ErrInvalidOrder.Error())
}

func TestDeleteAndRestore(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	a := s.createTask(token, map[string]any{"title": "A"})
	b := s.createTask(token, map[string]any{"title": "B"})
	c := s.createTask(token, map[string]any{"title": "C"})

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", a.ID), token, nil).Code)
	board := decode[models.Board](t, s.do(http.MethodGet, "/api/tasks", token, nil))
	assert.Equal(t, map[int64]int{b.ID: 0, c.ID: 1}, positions(board.Todo), "the gap is closed")

	s.store.advance(10 * time.Second)
	rec := s.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/restore", a.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[models.Task](t, rec).Position, "restored tasks go to the end of their column")

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", b.ID), token, nil).Code)
	s.store.advance(time.Minute)
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/restore", b.ID), token, nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/restore", c.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "live tasks cannot be restored")
}

func TestSubtasks(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	task := s.createTask(token, map[string]any{"title": "Write report"})
	base := fmt.Sprintf("/api/tasks/%d/subtasks", task.ID)

	rec := s.do(http.MethodPost, base, token, map[string]any{"title": "Collect numbers"})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[models.Subtask](t, rec)
	rec = s.do(http.MethodPost, base, token, map[string]any{"title": "Draft"})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[models.Subtask](t, rec)
	assert.Equal(t, 1, second.Position)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base, token, map[string]any{"title": ""}).Code)

	rec = s.do(http.MethodPatch, fmt.Sprintf("%s/%d", base, first.ID), token, map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Subtask](t, rec).IsCompleted)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	withSubtasks := decode[models.Task](t, rec)
	require.Len(t, withSubtasks.Subtasks, 2)
	assert.Greater(t, withSubtasks.Version, task.Version, "subtask changes bump the parent version")

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, fmt.Sprintf("%s/%d", base, first.ID), token, nil).Code)
	rec = s.do(http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	remaining := decode[[]models.Subtask](t, rec)
	require.Len(t, remaining, 1)
	assert.Equal(t, 0, remaining[0].Position)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, fmt.Sprintf("%s/%d", base, first.ID), token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/tasks/999/subtasks", token, map[string]any{"title": "x"}).Code)
}

func TestActivity(t *testing.T) {
	s := newTestServer(t)
	token := s.register("ada@example.com").Token
	task := s.createTask(token, map[string]any{"title": "A"})
	s.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/move", task.ID), token, map[string]any{"status": "done", "position": 0})
	s.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)

	rec := s.do(http.MethodGet, "/api/activity", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]models.ActivityLog](t, rec)
	require.Len(t, logs, 3)
	assert.Equal(t, models.ActionDeleteTask, logs[0].Action, "newest first")
	assert.Equal(t, models.ActionCreateTask, logs[2].Action)

	rec = s.do(http.MethodGet, "/api/activity?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ActivityLog](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/activity?limit=abc", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/activity?limit=0", token, nil).Code)
}

func TestHealth(t *testing.T) {
	h := &Handler{Checks: map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return nil }),
	}}

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok","redis":"ok"}}`, rec.Body.String())

	h.Checks["redis"] = pingFunc(func(context.Context) error { return errDown })
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","redis":"unavailable"}}`, rec.Body.String())
}

func TestRoutesWithoutLocalCredentials(t *testing.T) {
	s := newTestServer(t)
	h := &Handler{Auth: auth.NewFirebaseProvider(nil, nil), Checks: map[string]Pinger{}}
	router := NewRouter(h, "", "*")

	for _, path := range []string{"/api/auth/register", "/api/auth/login", "/api/auth/guest", "/api/auth/forgot-password", "/api/auth/reset-password"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	// the local provider still mounts them
	rec := s.do(http.MethodPost, "/api/auth/guest", "", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodOptions, "/api/tasks/1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
