package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"todolist/internal/models"
)

type TodoRepository struct {
	pool *pgxpool.Pool
}

func NewTodoRepository(pool *pgxpool.Pool) *TodoRepository {
	return &TodoRepository{pool: pool}
}

const todoColumns = `id, title, description, completed, user_id, created_at, updated_at`

func (r *TodoRepository) Create(ctx context.Context, todo models.Todo) (models.Todo, error) {
	const query = `
		INSERT INTO todos (
			id, title, description, completed, user_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
		RETURNING ` + todoColumns

	created, err := scanTodo(r.pool.QueryRow(ctx, query,
		todo.ID,
		todo.Title,
		todo.Description,
		todo.Completed,
		todo.UserID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Todo{}, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return models.Todo{}, err
	}
	return created, nil
}

func (r *TodoRepository) ListAll(ctx context.Context) ([]models.Todo, error) {
	const query = `SELECT ` + todoColumns + ` FROM todos ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]models.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

// ListPageByUser returns one page of the owner's todos, newest first, together with the
// owner's total and completed counts. The page starts strictly after cursor when cursor is set;
// an unknown cursor yields an empty page. Everything comes back in a single round trip: the
// counts row is always present and is left-joined with the page rows.
func (r *TodoRepository) ListPageByUser(ctx context.Context, userID string, cursor *string, limit int) (models.TodoPage, error) {
	const query = `
		WITH owned AS (
			SELECT id, title, description, completed, user_id, created_at, updated_at
			FROM todos
			WHERE user_id = $1
		),
		counts AS (
			SELECT COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE completed) AS completed_total
			FROM owned
		),
		page AS (
			SELECT o.id, o.title, o.description, o.completed, o.user_id, o.created_at, o.updated_at,
			       u.name AS owner_name, u.email AS owner_email
			FROM owned o
			JOIN users u ON u.id = o.user_id
			WHERE $2::text IS NULL
			   OR (o.created_at, o.id) < (SELECT c.created_at, c.id FROM todos c WHERE c.id = $2::text)
			ORDER BY o.created_at DESC, o.id DESC
			LIMIT $3
		)
		SELECT counts.total, counts.completed_total,
		       page.id, page.title, page.description, page.completed, page.user_id,
		       page.created_at, page.updated_at, page.owner_name, page.owner_email
		FROM counts
		LEFT JOIN page ON TRUE
		ORDER BY page.created_at DESC, page.id DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, cursor, limit)
	if err != nil {
		return models.TodoPage{}, err
	}
	defer rows.Close()

	page := models.TodoPage{Items: make([]models.TodoWithOwner, 0, limit)}
	for rows.Next() {
		var (
			total, completedTotal                       int
			id, title, description, ownerID, name, mail *string
			completed                                   *bool
			createdAt, updatedAt                        *time.Time
		)
		if err := rows.Scan(
			&total,
			&completedTotal,
			&id,
			&title,
			&description,
			&completed,
			&ownerID,
			&createdAt,
			&updatedAt,
			&name,
			&mail,
		); err != nil {
			return models.TodoPage{}, err
		}
		page.Total = total
		page.CompletedTotal = completedTotal
		if id == nil {
			continue
		}
		page.Items = append(page.Items, models.TodoWithOwner{
			Todo: models.Todo{
				ID:          *id,
				Title:       *title,
				Description: *description,
				Completed:   *completed,
				UserID:      *ownerID,
				CreatedAt:   *createdAt,
				UpdatedAt:   *updatedAt,
			},
			Owner: models.TodoOwner{ID: *ownerID, Name: *name, Email: *mail},
		})
	}
	if err := rows.Err(); err != nil {
		return models.TodoPage{}, err
	}

	if len(page.Items) > 0 && len(page.Items) == limit {
		last := page.Items[len(page.Items)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// Update applies the non-nil fields of patch. A non-nil ownerID restricts the update to that
// owner's todo. An empty patch leaves updated_at alone.
func (r *TodoRepository) Update(ctx context.Context, id string, ownerID *string, patch models.TodoPatch) (models.Todo, error) {
	const query = `
		UPDATE todos
		SET title = COALESCE($3, title),
		    description = COALESCE($4, description),
		    completed = COALESCE($5, completed),
		    updated_at = CASE
		        WHEN $3::text IS NULL AND $4::text IS NULL AND $5::boolean IS NULL THEN updated_at
		        ELSE NOW()
		    END
		WHERE id = $1 AND ($2::text IS NULL OR user_id = $2::text)
		RETURNING ` + todoColumns

	todo, err := scanTodo(r.pool.QueryRow(ctx, query, id, ownerID, patch.Title, patch.Description, patch.Completed))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Todo{}, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return models.Todo{}, err
	}
	return todo, nil
}

func (r *TodoRepository) Delete(ctx context.Context, id string, ownerID *string) (models.Todo, error) {
	const query = `
		DELETE FROM todos
		WHERE id = $1 AND ($2::text IS NULL OR user_id = $2::text)
		RETURNING ` + todoColumns
	return scanTodo(r.pool.QueryRow(ctx, query, id, ownerID))
}

func scanTodo(row pgx.Row) (models.Todo, error) {
	var todo models.Todo
	if err := row.Scan(
		&todo.ID,
		&todo.Title,
		&todo.Description,
		&todo.Completed,
		&todo.UserID,
		&todo.CreatedAt,
		&todo.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Todo{}, ErrTodoNotFound
		}
		return models.Todo{}, err
	}
	return todo, nil
}
