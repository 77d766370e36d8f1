package service

import (
	"context"
	"errors"
	"strings"

	"todolist/internal/config"
	"todolist/internal/ids"
	"todolist/internal/models"
	"todolist/internal/repository"
)

type TodoService struct {
	todos        TodoStore
	defaultLimit int
	maxLimit     int
	ownerScoped  bool
}

func NewTodoService(todos TodoStore, cfg *config.AppConfig) *TodoService {
	defaultLimit := cfg.Todos.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	maxLimit := cfg.Todos.MaxLimit
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}

	return &TodoService{
		todos:        todos,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		ownerScoped:  cfg.Todos.OwnerScoped,
	}
}

type CreateTodoInput struct {
	Title       string `validate:"required"`
	Description string `validate:"required"`
	Completed   bool
}

func (s *TodoService) Create(ctx context.Context, userID string, input CreateTodoInput) (models.Todo, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := validateInput(input); err != nil {
		return models.Todo{}, err
	}

	todo, err := s.todos.Create(ctx, models.Todo{
		ID:          ids.New(),
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
		UserID:      userID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Todo{}, ErrDuplicate
		}
		return models.Todo{}, err
	}
	return todo, nil
}

func (s *TodoService) ListAll(ctx context.Context) ([]models.Todo, error) {
	return s.todos.ListAll(ctx)
}

type ListTodosInput struct {
	Cursor string
	Limit  int
}

// List returns the user's todos newest first. A non-positive limit falls back to the default
// and anything above the maximum is clamped.
func (s *TodoService) List(ctx context.Context, userID string, input ListTodosInput) (models.TodoPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	var cursor *string
	if c := strings.TrimSpace(input.Cursor); c != "" {
		cursor = &c
	}

	return s.todos.ListPageByUser(ctx, userID, cursor, limit)
}

func (s *TodoService) Update(ctx context.Context, userID string, id string, patch models.TodoPatch) (models.Todo, error) {
	if !ids.Valid(id) {
		return models.Todo{}, ErrMalformedID
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Todo{}, &ValidationError{Fields: map[string]string{"title": "title is required"}}
		}
		patch.Title = &title
	}

	todo, err := s.todos.Update(ctx, id, s.owner(userID), patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTodoNotFound):
			return models.Todo{}, ErrTodoNotFound
		case errors.Is(err, repository.ErrDuplicate):
			return models.Todo{}, ErrDuplicate
		}
		return models.Todo{}, err
	}
	return todo, nil
}

func (s *TodoService) Delete(ctx context.Context, userID string, id string) (models.Todo, error) {
	if !ids.Valid(id) {
		return models.Todo{}, ErrMalformedID
	}

	todo, err := s.todos.Delete(ctx, id, s.owner(userID))
	if err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return models.Todo{}, ErrTodoNotFound
		}
		return models.Todo{}, err
	}
	return todo, nil
}

// owner is the filter applied to single-todo mutations; nil when owner scoping is off.
func (s *TodoService) owner(userID string) *string {
	if !s.ownerScoped {
		return nil
	}
	return &userID
}
