// Package items persists feedback items of retro boards.
package items

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

const columns = `id, retro_id, category, description, vote_count, done, archived, archive_id, archived_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanItem(s dbx.Scanner) (*models.Item, error) {
	var (
		it         models.Item
		archiveID  sql.NullInt64
		archivedAt sql.NullTime
	)
	if err := s.Scan(&it.ID, &it.RetroID, &it.Category, &it.Description, &it.VoteCount, &it.Done,
		&it.Archived, &archiveID, &archivedAt, &it.CreatedAt); err != nil {
		return nil, err
	}
	it.ArchiveID = dbx.Int64Ptr(archiveID)
	it.ArchivedAt = dbx.TimePtr(archivedAt)
	return &it, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Item, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return it, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	query :=
		`INSERT INTO items (retro_id, category, description)
		 VALUES ($1, $2, $3)
		 RETURNING ` + columns
	return r.one(ctx, query, item.RetroID, item.Category, item.Description)
}

// Get returns the item only when it belongs to retroID.
func (r *PostgresRepository) Get(ctx context.Context, retroID, id int64) (*models.Item, error) {
	return r.one(ctx, `SELECT `+columns+` FROM items WHERE id = $1 AND retro_id = $2`, id, retroID)
}

func (r *PostgresRepository) ListLive(ctx context.Context, retroID int64, order Order) ([]*models.Item, error) {
	orderBy := `created_at, id`
	if order == OrderVotes {
		orderBy = `vote_count DESC, created_at, id`
	}
	return r.many(ctx, `SELECT `+columns+` FROM items WHERE retro_id = $1 AND archived = false ORDER BY `+orderBy, retroID)
}

func (r *PostgresRepository) ListByArchive(ctx context.Context, archiveID int64) ([]*models.Item, error) {
	return r.many(ctx, `SELECT `+columns+` FROM items WHERE archive_id = $1 ORDER BY created_at, id`, archiveID)
}

// Update stores category and description of a live item.
func (r *PostgresRepository) Update(ctx context.Context, item *models.Item) (*models.Item, error) {
	query :=
		`UPDATE items SET category = $3, description = $4
		 WHERE id = $1 AND retro_id = $2 AND archived = false
		 RETURNING ` + columns
	return r.one(ctx, query, item.ID, item.RetroID, item.Category, item.Description)
}

// IncrementVote adds exactly one vote in a single statement so concurrent
// votes are never lost.
func (r *PostgresRepository) IncrementVote(ctx context.Context, retroID, id int64) (*models.Item, error) {
	query :=
		`UPDATE items SET vote_count = vote_count + 1
		 WHERE id = $1 AND retro_id = $2 AND archived = false
		 RETURNING ` + columns
	return r.one(ctx, query, id, retroID)
}

func (r *PostgresRepository) MarkDone(ctx context.Context, retroID, id int64) (*models.Item, error) {
	query :=
		`UPDATE items SET done = true
		 WHERE id = $1 AND retro_id = $2 AND archived = false
		 RETURNING ` + columns
	return r.one(ctx, query, id, retroID)
}

func (r *PostgresRepository) Delete(ctx context.Context, retroID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1 AND retro_id = $2`, id, retroID)
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

func (r *PostgresRepository) ArchiveLive(ctx context.Context, retroID, archiveID int64, at time.Time) (int64, error) {
	query :=
		`UPDATE items SET archived = true, archive_id = $2, archived_at = $3
		 WHERE retro_id = $1 AND archived = false`
	res, err := r.db.ExecContext(ctx, query, retroID, archiveID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to archive items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
