// Package sessions persists per-session retro unlock grants.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Grant(ctx context.Context, sessionID, slug string) error {
	query :=
		`INSERT INTO retro_session_grants (session_id, retro_slug)
		 VALUES ($1, $2)
		 ON CONFLICT (session_id, retro_slug) DO UPDATE SET created_at = now()`
	if _, err := r.db.ExecContext(ctx, query, sessionID, slug); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, sessionID string, since time.Time) ([]string, error) {
	query := `SELECT retro_slug FROM retro_session_grants WHERE session_id = $1 AND created_at > $2`

	rows, err := r.db.QueryContext(ctx, query, sessionID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		result = append(result, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, sessionID, slug string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM retro_session_grants WHERE session_id = $1 AND retro_slug = $2`, sessionID, slug); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeOthers(ctx context.Context, slug, keep string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM retro_session_grants WHERE retro_slug = $1 AND session_id <> $2`, slug, keep)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

// Rename first drops stale grants left under newSlug by a deleted retro.
func (r *PostgresRepository) Rename(ctx context.Context, oldSlug, newSlug string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM retro_session_grants WHERE retro_slug = $1`, newSlug); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE retro_session_grants SET retro_slug = $2 WHERE retro_slug = $1`, oldSlug, newSlug); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeAll(ctx context.Context, slug string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM retro_session_grants WHERE retro_slug = $1`, slug); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM retro_session_grants WHERE created_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
