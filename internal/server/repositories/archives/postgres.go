// Package archives persists the archive records created by retro archival.
package archives

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, retroID int64, at time.Time) (*models.Archive, error) {
	query :=
		`INSERT INTO archives (retro_id, created_at)
		 VALUES ($1, $2)
		 RETURNING id
		 `

	a := &models.Archive{RetroID: retroID, CreatedAt: at}
	if err := r.db.QueryRowContext(ctx, query, retroID, at).Scan(&a.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, retroID, id int64) (*models.Archive, error) {
	query := `SELECT id, retro_id, created_at FROM archives WHERE id = $1 AND retro_id = $2`

	a := &models.Archive{}
	if err := r.db.QueryRowContext(ctx, query, id, retroID).Scan(&a.ID, &a.RetroID, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ListByRetro(ctx context.Context, retroID int64) ([]*models.Archive, error) {
	query := `SELECT id, retro_id, created_at FROM archives WHERE retro_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, retroID)
	if err != nil {
		return nil, fmt.Errorf("failed to select archives: %w", err)
	}
	defer rows.Close()

	var result []*models.Archive
	for rows.Next() {
		var a models.Archive
		if err := rows.Scan(&a.ID, &a.RetroID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
