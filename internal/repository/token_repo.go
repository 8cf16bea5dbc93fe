package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"citizen-voice/internal/model"
)

// Refresh-token records live in their own table but are part of the user's
// credential store, so the methods hang off UserRepository.

func (r *UserRepository) AppendRefreshToken(ctx context.Context, userID string, record model.RefreshTokenRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.TokenHash, userID, record.CreatedAt, record.ExpiresAt, record.Active)
	if err != nil {
		return fmt.Errorf("append refresh token: %w", err)
	}
	return nil
}

func (r *UserRepository) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time, replacement model.RefreshTokenRecord) (model.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("begin refresh rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	err = tx.QueryRow(ctx,
		`UPDATE refresh_tokens SET active = false
		 WHERE token_hash = $1 AND active AND expires_at > $2
		 RETURNING user_id`, tokenHash, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, r.classifyUnusable(ctx, tx, tokenHash, now)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("consume refresh token: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5)`,
		replacement.TokenHash, userID, replacement.CreatedAt, replacement.ExpiresAt, replacement.Active); err != nil {
		return model.User{}, fmt.Errorf("insert rotated refresh token: %w", err)
	}

	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load refresh token owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.User{}, fmt.Errorf("commit refresh rotation: %w", err)
	}
	return u, nil
}

// classifyUnusable tells a reused (already deactivated, unexpired) token apart from
// one that never existed or simply expired.
func (r *UserRepository) classifyUnusable(ctx context.Context, tx pgx.Tx, tokenHash string, now time.Time) error {
	var userID string
	err := tx.QueryRow(ctx,
		`SELECT user_id FROM refresh_tokens
		 WHERE token_hash = $1 AND NOT active AND expires_at > $2`, tokenHash, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrInvalidRefreshToken
	}
	if err != nil {
		return fmt.Errorf("inspect refresh token: %w", err)
	}
	return &model.RefreshReuseError{UserID: userID}
}

func (r *UserRepository) DeactivateRefreshTokens(ctx context.Context, userID string, tokenHash string) error {
	var err error
	if tokenHash == "" {
		_, err = r.pool.Exec(ctx,
			`UPDATE refresh_tokens SET active = false WHERE user_id = $1 AND active`, userID)
	} else {
		_, err = r.pool.Exec(ctx,
			`UPDATE refresh_tokens SET active = false WHERE user_id = $1 AND token_hash = $2`, userID, tokenHash)
	}
	if err != nil {
		return fmt.Errorf("deactivate refresh tokens: %w", err)
	}
	return nil
}

func (r *UserRepository) PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("prune refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
