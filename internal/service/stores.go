package service

import (
	"context"

	"todolist/internal/models"
)

// UserStore is satisfied by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) (models.User, error)
}

// SessionStore is satisfied by repository.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash []byte) (models.RefreshToken, error)
	Rotate(ctx context.Context, oldHash []byte, next models.RefreshToken) error
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error
	DeleteByDevice(ctx context.Context, userID string, userAgent string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]models.RefreshToken, error)
}

// TodoStore is satisfied by repository.TodoRepository.
type TodoStore interface {
	Create(ctx context.Context, todo models.Todo) (models.Todo, error)
	ListAll(ctx context.Context) ([]models.Todo, error)
	ListPageByUser(ctx context.Context, userID string, cursor *string, limit int) (models.TodoPage, error)
	Update(ctx context.Context, id string, ownerID *string, patch models.TodoPatch) (models.Todo, error)
	Delete(ctx context.Context, id string, ownerID *string) (models.Todo, error)
}
