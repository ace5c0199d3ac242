package items

import (
	"context"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

// Order selects how live items are listed.
type Order int

const (
	OrderCreated Order = iota
	OrderVotes
)

type Repository interface {
	Create(ctx context.Context, item *models.Item) (*models.Item, error)
	Get(ctx context.Context, retroID, id int64) (*models.Item, error)
	ListLive(ctx context.Context, retroID int64, order Order) ([]*models.Item, error)
	ListByArchive(ctx context.Context, archiveID int64) ([]*models.Item, error)
	Update(ctx context.Context, item *models.Item) (*models.Item, error)
	IncrementVote(ctx context.Context, retroID, id int64) (*models.Item, error)
	MarkDone(ctx context.Context, retroID, id int64) (*models.Item, error)
	Delete(ctx context.Context, retroID, id int64) error
	// ArchiveLive moves every live item of the retro into the archive.
	ArchiveLive(ctx context.Context, retroID, archiveID int64, at time.Time) (int64, error)
}
