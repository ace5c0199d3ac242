// Package retros persists retro boards.
package retros

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

// ErrSlugTaken is reported when another retro already uses the slug.
var ErrSlugTaken = common.Validation("slug has already been taken")

const columns = `id, slug, name, is_private, password_hash, video_link, highlighted_item_id,
		 magic_link_enabled, join_token, send_archive_email, user_id, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanRetro(s dbx.Scanner) (*models.Retro, error) {
	var (
		r           models.Retro
		highlighted sql.NullInt64
		userID      sql.NullInt64
	)
	err := s.Scan(&r.ID, &r.Slug, &r.Name, &r.IsPrivate, &r.PasswordHash, &r.VideoLink, &highlighted,
		&r.MagicLinkEnabled, &r.JoinToken, &r.SendArchiveEmail, &userID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.HighlightedItemID = dbx.Int64Ptr(highlighted)
	r.UserID = dbx.Int64Ptr(userID)
	return &r, nil
}

// Create inserts retro and fills in its generated fields.
func (r *PostgresRepository) Create(ctx context.Context, retro *models.Retro) (*models.Retro, error) {
	query :=
		`INSERT INTO retros (slug, name, is_private, password_hash, video_link, magic_link_enabled, join_token, send_archive_email, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		retro.Slug, retro.Name, retro.IsPrivate, retro.PasswordHash, retro.VideoLink,
		retro.MagicLinkEnabled, retro.JoinToken, retro.SendArchiveEmail, dbx.NullInt64(retro.UserID),
	).Scan(&retro.ID, &retro.CreatedAt, &retro.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return retro, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Retro, error) {
	retro, err := scanRetro(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return retro, nil
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*models.Retro, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM retros WHERE slug = $1`, slug)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Retro, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM retros WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Retro, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM retros WHERE id = $1 FOR UPDATE`, id)
}

// ListByUser returns the retros owned by userID, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Retro, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM retros WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select retros: %w", err)
	}
	defer rows.Close()

	var result []*models.Retro
	for rows.Next() {
		retro, err := scanRetro(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, retro)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update stores the editable settings of retro.
func (r *PostgresRepository) Update(ctx context.Context, retro *models.Retro) error {
	query :=
		`UPDATE retros
		 SET slug = $2, name = $3, is_private = $4, password_hash = $5, video_link = $6,
		     magic_link_enabled = $7, join_token = $8, send_archive_email = $9, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		retro.ID, retro.Slug, retro.Name, retro.IsPrivate, retro.PasswordHash, retro.VideoLink,
		retro.MagicLinkEnabled, retro.JoinToken, retro.SendArchiveEmail,
	).Scan(&retro.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return common.ErrorNotFound
		case dbx.IsUniqueViolation(err):
			return ErrSlugTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM retros WHERE id = $1`, id)
}

// SetHighlight points the retro at itemID; nil clears the highlight.
func (r *PostgresRepository) SetHighlight(ctx context.Context, retroID int64, itemID *int64) error {
	return r.execOne(ctx, `UPDATE retros SET highlighted_item_id = $2, updated_at = now() WHERE id = $1`,
		retroID, dbx.NullInt64(itemID))
}

// HighlightLive points the retro at itemID as long as the item belongs to
// the retro and is not archived, checked in the same statement. It returns
// common.ErrorNotFound when nothing was updated.
func (r *PostgresRepository) HighlightLive(ctx context.Context, retroID, itemID int64) error {
	return r.execOne(ctx,
		`UPDATE retros SET highlighted_item_id = $2, updated_at = now()
		 WHERE id = $1
		   AND EXISTS (SELECT 1 FROM items WHERE id = $2 AND retro_id = $1 AND NOT archived)`,
		retroID, itemID)
}

// ClearHighlightIf clears the highlight only when it points at itemID and
// reports whether it did.
func (r *PostgresRepository) ClearHighlightIf(ctx context.Context, retroID, itemID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE retros SET highlighted_item_id = NULL, updated_at = now() WHERE id = $1 AND highlighted_item_id = $2`,
		retroID, itemID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) SetSendArchiveEmail(ctx context.Context, retroID int64, send bool) error {
	return r.execOne(ctx, `UPDATE retros SET send_archive_email = $2, updated_at = now() WHERE id = $1`, retroID, send)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
