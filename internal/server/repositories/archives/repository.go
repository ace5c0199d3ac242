package archives

import (
	"context"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, retroID int64, at time.Time) (*models.Archive, error)
	Get(ctx context.Context, retroID, id int64) (*models.Archive, error)
	// ListByRetro returns the archives of a retro, newest first.
	ListByRetro(ctx context.Context, retroID int64) ([]*models.Archive, error)
}
