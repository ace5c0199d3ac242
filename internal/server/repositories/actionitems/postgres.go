// Package actionitems persists follow-up tasks of retro boards.
package actionitems

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

const columns = `id, retro_id, description, done, archived, archive_id, archived_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanActionItem(s dbx.Scanner) (*models.ActionItem, error) {
	var (
		a          models.ActionItem
		archiveID  sql.NullInt64
		archivedAt sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.RetroID, &a.Description, &a.Done, &a.Archived, &archiveID, &archivedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ArchiveID = dbx.Int64Ptr(archiveID)
	a.ArchivedAt = dbx.TimePtr(archivedAt)
	return &a, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.ActionItem, error) {
	a, err := scanActionItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*models.ActionItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select action items: %w", err)
	}
	defer rows.Close()

	var result []*models.ActionItem
	for rows.Next() {
		a, err := scanActionItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, item *models.ActionItem) (*models.ActionItem, error) {
	query :=
		`INSERT INTO action_items (retro_id, description)
		 VALUES ($1, $2)
		 RETURNING ` + columns
	return r.one(ctx, query, item.RetroID, item.Description)
}

func (r *PostgresRepository) Get(ctx context.Context, retroID, id int64) (*models.ActionItem, error) {
	return r.one(ctx, `SELECT `+columns+` FROM action_items WHERE id = $1 AND retro_id = $2`, id, retroID)
}

func (r *PostgresRepository) ListLive(ctx context.Context, retroID int64) ([]*models.ActionItem, error) {
	return r.many(ctx, `SELECT `+columns+` FROM action_items WHERE retro_id = $1 AND archived = false ORDER BY created_at, id`, retroID)
}

func (r *PostgresRepository) ListByArchive(ctx context.Context, archiveID int64) ([]*models.ActionItem, error) {
	return r.many(ctx, `SELECT `+columns+` FROM action_items WHERE archive_id = $1 ORDER BY created_at, id`, archiveID)
}

// Update stores description and done of a live action item.
func (r *PostgresRepository) Update(ctx context.Context, item *models.ActionItem) (*models.ActionItem, error) {
	query :=
		`UPDATE action_items SET description = $3, done = $4
		 WHERE id = $1 AND retro_id = $2 AND archived = false
		 RETURNING ` + columns
	return r.one(ctx, query, item.ID, item.RetroID, item.Description, item.Done)
}

func (r *PostgresRepository) ToggleDone(ctx context.Context, retroID, id int64) (*models.ActionItem, error) {
	query :=
		`UPDATE action_items SET done = NOT done
		 WHERE id = $1 AND retro_id = $2 AND archived = false
		 RETURNING ` + columns
	return r.one(ctx, query, id, retroID)
}

func (r *PostgresRepository) Delete(ctx context.Context, retroID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM action_items WHERE id = $1 AND retro_id = $2`, id, retroID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ArchiveDone(ctx context.Context, retroID, archiveID int64, at time.Time) (int64, error) {
	query :=
		`UPDATE action_items SET archived = true, archive_id = $2, archived_at = $3
		 WHERE retro_id = $1 AND archived = false AND done = true`
	res, err := r.db.ExecContext(ctx, query, retroID, archiveID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to archive action items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
