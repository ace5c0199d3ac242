package actionitems

import (
	"context"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, item *models.ActionItem) (*models.ActionItem, error)
	Get(ctx context.Context, retroID, id int64) (*models.ActionItem, error)
	ListLive(ctx context.Context, retroID int64) ([]*models.ActionItem, error)
	ListByArchive(ctx context.Context, archiveID int64) ([]*models.ActionItem, error)
	Update(ctx context.Context, item *models.ActionItem) (*models.ActionItem, error)
	ToggleDone(ctx context.Context, retroID, id int64) (*models.ActionItem, error)
	Delete(ctx context.Context, retroID, id int64) error
	// ArchiveDone moves the live action items marked done into the archive;
	// open ones stay on the board.
	ArchiveDone(ctx context.Context, retroID, archiveID int64, at time.Time) (int64, error)
}
