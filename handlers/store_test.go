package handlers

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"taskboard/models"
	"taskboard/utils"

	"github.com/google/uuid"
)

type memTask struct {
	task      models.Task
	deletedAt *time.Time
}

// memStore is an in-memory UserStore and TaskStore keeping the same column
// invariants as the Postgres store.
type memStore struct {
	mu       sync.Mutex
	now      time.Time
	users    map[uuid.UUID]*models.User
	tasks    map[int64]*memTask
	subtasks map[int64]*models.Subtask
	activity []models.ActivityLog
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		now:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		users:    map[uuid.UUID]*models.User{},
		tasks:    map[int64]*memTask{},
		subtasks: map[int64]*models.Subtask{},
	}
}

func (m *memStore) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) log(userID string, taskID *int64, action models.Action, details string) {
	m.activity = append(m.activity, models.ActivityLog{
		ID:        m.id(),
		UserID:    uuid.MustParse(userID),
		TaskID:    taskID,
		Action:    action,
		Details:   details,
		CreatedAt: m.now,
	})
}

// Users

func (m *memStore) findEmail(email string) *models.User {
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return u
		}
	}
	return nil
}

func (m *memStore) EmailInUse(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findEmail(email) != nil, nil
}

func (m *memStore) CreateUser(_ context.Context, email, passwordHash, displayName string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findEmail(email) != nil {
		return nil, utils.ErrEmailInUse
	}
	u := &models.User{ID: uuid.New(), Email: &email, PasswordHash: &passwordHash, DisplayName: displayName, CreatedAt: m.now}
	m.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) CreateTemporaryUser(context.Context) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.New(), DisplayName: "Guest", Temporary: true, CreatedAt: m.now}
	m.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) user(userID string) (*models.User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, utils.ErrNotFound
	}
	u, ok := m.users[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return u, nil
}

func (m *memStore) UpgradeTemporaryUser(_ context.Context, userID, email, passwordHash, displayName string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil || !u.Temporary {
		return nil, utils.ErrNotFound
	}
	if m.findEmail(email) != nil {
		return nil, utils.ErrEmailInUse
	}
	u.Email, u.PasswordHash, u.DisplayName, u.Temporary = &email, &passwordHash, displayName, false
	copied := *u
	return &copied, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return nil, err
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.findEmail(email)
	if u == nil {
		return nil, utils.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := m.GetUserByEmail(ctx, email)
	if err != nil || u.PasswordHash == nil || !utils.CheckPasswordHash(password, *u.PasswordHash) {
		return nil, utils.ErrInvalidCredentials
	}
	return u, nil
}

func (m *memStore) UpdateDisplayName(_ context.Context, userID, displayName string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName
	copied := *u
	return &copied, nil
}

func (m *memStore) ChangePassword(_ context.Context, email, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.findEmail(email)
	if u == nil {
		return nil, utils.ErrNotFound
	}
	u.PasswordHash = &passwordHash
	copied := *u
	return &copied, nil
}

func (m *memStore) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return err
	}
	delete(m.users, u.ID)
	for id, t := range m.tasks {
		if t.task.UserID == u.ID {
			delete(m.tasks, id)
		}
	}
	return nil
}

func (m *memStore) UpdateLastActivity(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return err
	}
	u.LastActivity = m.now
	return nil
}

// Tasks

func (m *memStore) column(userID string, status models.Status, exclude int64) []*memTask {
	var col []*memTask
	for _, t := range m.tasks {
		if t.task.UserID.String() == userID && t.task.Status == status && t.deletedAt == nil && t.task.ID != exclude {
			col = append(col, t)
		}
	}
	slices.SortFunc(col, func(a, b *memTask) int { return a.task.Position - b.task.Position })
	return col
}

func renumber(col []*memTask) {
	for i, t := range col {
		t.task.Position = i
	}
}

func (m *memStore) live(userID string, taskID int64) (*memTask, error) {
	t, ok := m.tasks[taskID]
	if !ok || t.deletedAt != nil || t.task.UserID.String() != userID {
		return nil, utils.ErrNotFound
	}
	return t, nil
}

func (m *memStore) withSubtasks(t models.Task) models.Task {
	t.Subtasks = []models.Subtask{}
	for _, st := range m.subtasks {
		if st.TaskID == t.ID {
			t.Subtasks = append(t.Subtasks, *st)
		}
	}
	slices.SortFunc(t.Subtasks, func(a, b models.Subtask) int { return a.Position - b.Position })
	return t
}

func (m *memStore) bump(t *memTask) {
	t.task.Version++
	t.task.UpdatedAt = m.now
}

func (m *memStore) GetBoard(_ context.Context, userID string) (models.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []models.Task
	for _, status := range models.Statuses {
		for _, t := range m.column(userID, status, 0) {
			tasks = append(tasks, m.withSubtasks(t.task))
		}
	}
	return utils.GroupBoard(tasks), nil
}

func (m *memStore) GetTask(_ context.Context, userID string, taskID int64) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.live(userID, taskID)
	if err != nil {
		return nil, err
	}
	task := m.withSubtasks(t.task)
	return &task, nil
}

func (m *memStore) CreateTask(_ context.Context, userID string, in models.NewTask) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memTask{task: models.Task{
		ID:          m.id(),
		UserID:      uuid.MustParse(userID),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Position:    len(m.column(userID, in.Status, 0)),
		DueDate:     in.DueDate,
		Version:     1,
		CreatedAt:   m.now,
		UpdatedAt:   m.now,
	}}
	m.tasks[t.task.ID] = t
	m.log(userID, &t.task.ID, models.ActionCreateTask, in.Title)
	task := m.withSubtasks(t.task)
	return &task, nil
}

func (m *memStore) UpdateTask(_ context.Context, userID string, taskID int64, patch models.TaskPatch) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.live(userID, taskID)
	if err != nil {
		return nil, err
	}
	if patch.Version != nil && *patch.Version != t.task.Version {
		current := m.withSubtasks(t.task)
		return &current, utils.ErrConflict
	}
	if patch.Title != nil {
		t.task.Title = *patch.Title
	}
	if patch.Description != nil {
		t.task.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.task.Priority = *patch.Priority
	}
	if patch.ClearDueDate {
		t.task.DueDate = nil
	} else if patch.DueDate != nil {
		t.task.DueDate = patch.DueDate
	}
	if patch.Status != nil && *patch.Status != t.task.Status {
		old := t.task.Status
		t.task.Status = *patch.Status
		t.task.Position = len(m.column(userID, t.task.Status, taskID))
		renumber(m.column(userID, old, taskID))
	}
	m.bump(t)
	m.log(userID, &taskID, models.ActionUpdateTask, "")
	task := m.withSubtasks(t.task)
	return &task, nil
}

func (m *memStore) MoveTask(_ context.Context, userID string, taskID int64, move models.Move) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.live(userID, taskID)
	if err != nil {
		return nil, err
	}
	old := t.task.Status
	target := m.column(userID, move.Status, taskID)
	pos := utils.ClampPosition(move.Position, len(target))
	target = slices.Insert(target, pos, t)
	t.task.Status = move.Status
	renumber(target)
	if old != move.Status {
		renumber(m.column(userID, old, taskID))
	}
	m.bump(t)
	m.log(userID, &taskID, models.ActionMoveTask, "")
	task := m.withSubtasks(t.task)
	return &task, nil
}

func (m *memStore) ReorderColumn(_ context.Context, userID string, reorder models.Reorder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.column(userID, reorder.Status, 0)
	existing := make([]int64, len(col))
	for i, t := range col {
		existing[i] = t.task.ID
	}
	if err := utils.ValidateOrder(existing, reorder.IDs); err != nil {
		return err
	}
	for i, id := range reorder.IDs {
		m.tasks[id].task.Position = i
	}
	m.log(userID, nil, models.ActionReorderTasks, string(reorder.Status))
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, userID string, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.live(userID, taskID)
	if err != nil {
		return err
	}
	now := m.now
	t.deletedAt = &now
	m.bump(t)
	renumber(m.column(userID, t.task.Status, taskID))
	m.log(userID, &taskID, models.ActionDeleteTask, t.task.Title)
	return nil
}

func (m *memStore) RestoreTask(_ context.Context, userID string, taskID int64, window time.Duration) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.deletedAt == nil || t.task.UserID.String() != userID {
		return nil, utils.ErrNotFound
	}
	if m.now.Sub(*t.deletedAt) > window {
		return nil, utils.ErrUndoExpired
	}
	t.deletedAt = nil
	t.task.Position = len(m.column(userID, t.task.Status, taskID))
	m.bump(t)
	m.log(userID, &taskID, models.ActionRestoreTask, t.task.Title)
	task := m.withSubtasks(t.task)
	return &task, nil
}

// Subtasks

func (m *memStore) ListSubtasks(_ context.Context, userID string, taskID int64) ([]models.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.live(userID, taskID)
	if err != nil {
		return nil, err
	}
	return m.withSubtasks(t.task).Subtasks, nil
}

func (m *memStore) CreateSubtask(_ context.Context, userID string, taskID int64, title string) (*models.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.live(userID, taskID)
	if err != nil {
		return nil, err
	}
	st := &models.Subtask{
		ID:        m.id(),
		TaskID:    taskID,
		Title:     title,
		Position:  len(m.withSubtasks(t.task).Subtasks),
		CreatedAt: m.now,
		UpdatedAt: m.now,
	}
	m.subtasks[st.ID] = st
	m.bump(t)
	m.log(userID, &taskID, models.ActionCreateSubtask, title)
	copied := *st
	return &copied, nil
}

func (m *memStore) subtask(userID string, taskID, subtaskID int64) (*memTask, *models.Subtask, error) {
	t, err := m.live(userID, taskID)
	if err != nil {
		return nil, nil, err
	}
	st, ok := m.subtasks[subtaskID]
	if !ok || st.TaskID != taskID {
		return nil, nil, utils.ErrNotFound
	}
	return t, st, nil
}

func (m *memStore) UpdateSubtask(_ context.Context, userID string, taskID, subtaskID int64, patch models.SubtaskPatch) (*models.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, st, err := m.subtask(userID, taskID, subtaskID)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		st.Title = *patch.Title
	}
	if patch.Completed != nil {
		st.IsCompleted = *patch.Completed
	}
	st.UpdatedAt = m.now
	m.bump(t)
	m.log(userID, &taskID, models.ActionUpdateSubtask, st.Title)
	copied := *st
	return &copied, nil
}

func (m *memStore) DeleteSubtask(_ context.Context, userID string, taskID, subtaskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, st, err := m.subtask(userID, taskID, subtaskID)
	if err != nil {
		return err
	}
	delete(m.subtasks, st.ID)
	for _, other := range m.subtasks {
		if other.TaskID == taskID && other.Position > st.Position {
			other.Position--
		}
	}
	m.bump(t)
	m.log(userID, &taskID, models.ActionDeleteSubtask, st.Title)
	return nil
}

func (m *memStore) ListActivity(_ context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs := []models.ActivityLog{}
	for i := len(m.activity) - 1; i >= 0 && len(logs) < limit; i-- {
		if m.activity[i].UserID.String() == userID {
			logs = append(logs, m.activity[i])
		}
	}
	return logs, nil
}

type sentCode struct {
	email, code string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (r *recordingMailer) SendResetCode(_ context.Context, email, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentCode{email: email, code: code})
	return nil
}

func (r *recordingMailer) last() (sentCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentCode{}, false
	}
	return r.sent[len(r.sent)-1], true
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var errDown = errors.New("connection refused")
