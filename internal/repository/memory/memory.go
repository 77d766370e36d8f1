// Package memory holds map-backed stores with the same contracts as the Postgres repositories.
// They back the service and handler tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"todolist/internal/models"
	"todolist/internal/repository"
)

// clock hands out strictly increasing timestamps so creation order is total.
type clock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

type Users struct {
	mu    sync.RWMutex
	clock clock
	byID  map[string]models.User
}

func NewUsers() *Users {
	return &Users{byID: make(map[string]models.User)}
}

func (s *Users) Create(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.ID == user.ID || existing.Email == user.Email || existing.Name == user.Name {
			return models.User{}, repository.ErrDuplicate
		}
	}
	now := s.clock.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.byID[user.ID] = user
	return user, nil
}

func (s *Users) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *Users) GetByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *Users) Update(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[user.ID]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	for id, existing := range s.byID {
		if id != user.ID && (existing.Email == user.Email || existing.Name == user.Name) {
			return models.User{}, repository.ErrDuplicate
		}
	}
	current.Name = user.Name
	current.Email = user.Email
	current.PasswordHash = user.PasswordHash
	current.UpdatedAt = s.clock.now()
	s.byID[user.ID] = current
	return current, nil
}

type Sessions struct {
	mu    sync.Mutex
	clock clock
	rows  []models.RefreshToken
}

func NewSessions() *Sessions {
	return &Sessions{}
}

func (s *Sessions) Create(_ context.Context, session models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(session)
}

func (s *Sessions) insertLocked(session models.RefreshToken) error {
	for _, row := range s.rows {
		if bytes.Equal(row.TokenHash, session.TokenHash) || row.ID == session.ID {
			return repository.ErrDuplicate
		}
	}
	session.CreatedAt = s.clock.now()
	s.rows = append(s.rows, session)
	return nil
}

func (s *Sessions) FindByHash(_ context.Context, tokenHash []byte) (models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if bytes.Equal(row.TokenHash, tokenHash) {
			return row, nil
		}
	}
	return models.RefreshToken{}, repository.ErrSessionNotFound
}

func (s *Sessions) Rotate(_ context.Context, oldHash []byte, next models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, row := range s.rows {
		if bytes.Equal(row.TokenHash, oldHash) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return repository.ErrSessionNotFound
	}

	kept := make([]models.RefreshToken, 0, len(s.rows))
	kept = append(kept, s.rows[:idx]...)
	kept = append(kept, s.rows[idx+1:]...)
	previous := s.rows
	s.rows = kept
	if err := s.insertLocked(next); err != nil {
		s.rows = previous
		return err
	}
	return nil
}

func (s *Sessions) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *Sessions) DeleteOldestSessions(_ context.Context, userID string, keepLatest int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make([]models.RefreshToken, 0)
	for _, row := range s.rows {
		if row.UserID == userID {
			owned = append(owned, row)
		}
	}
	if len(owned) <= keepLatest {
		return nil
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	drop := make(map[string]struct{}, len(owned)-keepLatest)
	for _, row := range owned[keepLatest:] {
		drop[row.ID] = struct{}{}
	}
	kept := s.rows[:0]
	for _, row := range s.rows {
		if _, ok := drop[row.ID]; !ok {
			kept = append(kept, row)
		}
	}
	s.rows = kept
	return nil
}

func (s *Sessions) DeleteByDevice(_ context.Context, userID string, userAgent string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.UserID == userID && row.UserAgent == userAgent {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return removed, nil
}

func (s *Sessions) ListByUser(_ context.Context, userID string) ([]models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]models.RefreshToken, 0)
	for _, row := range s.rows {
		if row.UserID == userID && !row.Expired(now) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Sessions) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.ExpiresAt.Before(now) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return removed, nil
}

// Expire moves the stored expiry of every token the user holds to at.
func (s *Sessions) Expire(userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].UserID == userID {
			s.rows[i].ExpiresAt = at
		}
	}
}

// Todos joins owners from users when building pages, like the SQL query does.
type Todos struct {
	mu    sync.Mutex
	clock clock
	users *Users
	rows  []models.Todo
}

func NewTodos(users *Users) *Todos {
	return &Todos{users: users}
}

func (s *Todos) Create(_ context.Context, todo models.Todo) (models.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if row.ID == todo.ID {
			return models.Todo{}, repository.ErrDuplicate
		}
	}
	now := s.clock.now()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	s.rows = append(s.rows, todo)
	return todo, nil
}

func (s *Todos) ListAll(_ context.Context) ([]models.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]models.Todo(nil), s.rows...)
	sortNewestFirst(out)
	if out == nil {
		out = make([]models.Todo, 0)
	}
	return out, nil
}

func (s *Todos) ListPageByUser(ctx context.Context, userID string, cursor *string, limit int) (models.TodoPage, error) {
	s.mu.Lock()
	owned := make([]models.Todo, 0)
	for _, row := range s.rows {
		if row.UserID == userID {
			owned = append(owned, row)
		}
	}
	var after *models.Todo
	if cursor != nil {
		for i := range s.rows {
			if s.rows[i].ID == *cursor {
				found := s.rows[i]
				after = &found
				break
			}
		}
	}
	s.mu.Unlock()

	sortNewestFirst(owned)

	page := models.TodoPage{Items: make([]models.TodoWithOwner, 0, limit), Total: len(owned)}
	for _, row := range owned {
		if row.Completed {
			page.CompletedTotal++
		}
	}
	if cursor != nil && after == nil {
		return page, nil
	}

	for _, row := range owned {
		if len(page.Items) == limit {
			break
		}
		if after != nil && !olderThan(row, *after) {
			continue
		}
		owner, err := s.users.GetByID(ctx, row.UserID)
		if err != nil {
			continue
		}
		page.Items = append(page.Items, models.TodoWithOwner{
			Todo:  row,
			Owner: models.TodoOwner{ID: owner.ID, Name: owner.Name, Email: owner.Email},
		})
	}

	if len(page.Items) > 0 && len(page.Items) == limit {
		last := page.Items[len(page.Items)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

func (s *Todos) Update(_ context.Context, id string, ownerID *string, patch models.TodoPatch) (models.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		row := &s.rows[i]
		if row.ID != id || (ownerID != nil && row.UserID != *ownerID) {
			continue
		}
		if patch.Title != nil {
			row.Title = *patch.Title
		}
		if patch.Description != nil {
			row.Description = *patch.Description
		}
		if patch.Completed != nil {
			row.Completed = *patch.Completed
		}
		if !patch.Empty() {
			row.UpdatedAt = s.clock.now()
		}
		return *row, nil
	}
	return models.Todo{}, repository.ErrTodoNotFound
}

func (s *Todos) Delete(_ context.Context, id string, ownerID *string) (models.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, row := range s.rows {
		if row.ID != id || (ownerID != nil && row.UserID != *ownerID) {
			continue
		}
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
		return row, nil
	}
	return models.Todo{}, repository.ErrTodoNotFound
}

func sortNewestFirst(todos []models.Todo) {
	sort.Slice(todos, func(i, j int) bool { return olderThan(todos[j], todos[i]) })
}

// olderThan compares (created_at, id) pairs the way the SQL row comparison does.
func olderThan(a, b models.Todo) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
