package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"todolist/internal/models"
)

// SessionRepository persists refresh tokens, one row per signed-in device.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, token_hash, device_name, ip_address, user_agent, created_at, expires_at`

func (r *SessionRepository) Create(ctx context.Context, session models.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, device_name, ip_address, user_agent, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), $7
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.DeviceName,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (r *SessionRepository) FindByHash(ctx context.Context, tokenHash []byte) (models.RefreshToken, error) {
	const query = `SELECT ` + sessionColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanSession(r.pool.QueryRow(ctx, query, tokenHash))
}

// Rotate deletes the row holding oldHash and inserts next in the same transaction. If oldHash
// is already gone (a concurrent rotation or logout won) nothing is inserted and
// ErrSessionNotFound is returned.
func (r *SessionRepository) Rotate(ctx context.Context, oldHash []byte, next models.RefreshToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, oldHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != 1 {
		return ErrSessionNotFound
	}

	const insert = `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, device_name, ip_address, user_agent, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), $7
		)
	`
	if _, err := tx.Exec(ctx, insert,
		next.ID,
		next.UserID,
		next.TokenHash,
		next.DeviceName,
		next.IPAddress,
		next.UserAgent,
		next.ExpiresAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *SessionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1`
	row := r.pool.QueryRow(ctx, query, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SessionRepository) DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error {
	const query = `
		DELETE FROM refresh_tokens
		WHERE id IN (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC
			OFFSET $2
		)
	`
	_, err := r.pool.Exec(ctx, query, userID, keepLatest)
	return err
}

// DeleteByDevice removes every token the user holds for userAgent and reports how many went.
func (r *SessionRepository) DeleteByDevice(ctx context.Context, userID string, userAgent string) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1 AND user_agent = $2`
	cmd, err := r.pool.Exec(ctx, query, userID, userAgent)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.RefreshToken, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// PurgeExpired drops tokens past their expiry and returns the number removed.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row pgx.Row) (models.RefreshToken, error) {
	var session models.RefreshToken
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.DeviceName,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, ErrSessionNotFound
		}
		return models.RefreshToken{}, err
	}
	return session, nil
}
