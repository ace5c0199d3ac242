package retros

import (
	"context"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, retro *models.Retro) (*models.Retro, error)
	GetBySlug(ctx context.Context, slug string) (*models.Retro, error)
	GetByID(ctx context.Context, id int64) (*models.Retro, error)
	// GetByIDForUpdate locks the retro row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Retro, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Retro, error)
	Update(ctx context.Context, retro *models.Retro) error
	Delete(ctx context.Context, id int64) error
	SetHighlight(ctx context.Context, retroID int64, itemID *int64) error
	// HighlightLive sets the highlight only if itemID is a live item of the retro.
	HighlightLive(ctx context.Context, retroID, itemID int64) error
	ClearHighlightIf(ctx context.Context, retroID, itemID int64) (bool, error)
	SetSendArchiveEmail(ctx context.Context, retroID int64, send bool) error
}
