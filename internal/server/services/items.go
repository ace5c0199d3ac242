package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
)

var (
	ErrDescriptionRequired = common.Validation("description required")
	ErrCategoryInvalid     = common.Validation("category is invalid")
	ErrArchived            = common.Validation("item is archived")
)

// ItemUpdate holds the item fields to change; nil fields stay as they are.
type ItemUpdate struct {
	Description *string          `json:"description"`
	Category    *models.Category `json:"category"`
}

type highlightPayload struct {
	ItemID *int64 `json:"item_id"`
}

// ItemService implements the feedback item rules. Archived items are
// read-only; marking done or deleting the highlighted item clears the
// retro's highlight in the same transaction.
type ItemService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    *Notifier
}

func NewItemService(db *sql.DB, m repomanager.RepositoryManager, n *Notifier) *ItemService {
	return &ItemService{db: db, repomanager: m, notifier: n}
}

func (s *ItemService) Create(ctx context.Context, retro *models.Retro, category models.Category, description string) (*models.Item, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}
	if !category.Valid() {
		return nil, ErrCategoryInvalid
	}

	item, err := s.repomanager.Items(s.db).Create(ctx, &models.Item{RetroID: retro.ID, Category: category, Description: description})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventItemChanged, item)
	return item, nil
}

func (s *ItemService) Update(ctx context.Context, retro *models.Retro, id int64, upd ItemUpdate) (*models.Item, error) {
	repo := s.repomanager.Items(s.db)

	item, err := repo.Get(ctx, retro.ID, id)
	if err != nil {
		return nil, err
	}
	if item.Archived {
		return nil, ErrArchived
	}
	if upd.Description != nil {
		item.Description = strings.TrimSpace(*upd.Description)
		if item.Description == "" {
			return nil, ErrDescriptionRequired
		}
	}
	if upd.Category != nil {
		if !upd.Category.Valid() {
			return nil, ErrCategoryInvalid
		}
		item.Category = *upd.Category
	}

	item, err = repo.Update(ctx, item)
	if err != nil {
		return nil, s.explain(ctx, retro, id, err)
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventItemChanged, item)
	return item, nil
}

// Vote adds one vote. There is no per-voter limit.
func (s *ItemService) Vote(ctx context.Context, retro *models.Retro, id int64) (*models.Item, error) {
	item, err := s.repomanager.Items(s.db).IncrementVote(ctx, retro.ID, id)
	if err != nil {
		return nil, s.explain(ctx, retro, id, err)
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventItemChanged, item)
	return item, nil
}

// Highlight selects a live item of the retro for discussion. The liveness
// check and the update are one statement, so an item archived concurrently
// is never highlighted.
func (s *ItemService) Highlight(ctx context.Context, retro *models.Retro, id int64) error {
	if err := s.repomanager.Retros(s.db).HighlightLive(ctx, retro.ID, id); err != nil {
		return s.explain(ctx, retro, id, err)
	}
	retro.HighlightedItemID = &id
	s.notifier.Notify(ctx, retro.ID, broadcast.EventHighlight, highlightPayload{ItemID: &id})
	return nil
}

// Unhighlight clears the retro's highlight whatever it points at.
func (s *ItemService) Unhighlight(ctx context.Context, retro *models.Retro) error {
	if err := s.repomanager.Retros(s.db).SetHighlight(ctx, retro.ID, nil); err != nil {
		return fmt.Errorf("clear highlight: %w", err)
	}
	retro.HighlightedItemID = nil
	s.notifier.Notify(ctx, retro.ID, broadcast.EventHighlight, highlightPayload{})
	return nil
}

// MarkDone sets done on the item and clears the highlight if it pointed at it.
func (s *ItemService) MarkDone(ctx context.Context, retro *models.Retro, id int64) (*models.Item, error) {
	var (
		item    *models.Item
		cleared bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if item, err = s.repomanager.Items(tx).MarkDone(ctx, retro.ID, id); err != nil {
			return s.explainTx(ctx, tx, retro, id, err)
		}
		cleared, err = s.repomanager.Retros(tx).ClearHighlightIf(ctx, retro.ID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, retro.ID, broadcast.EventItemChanged, item)
	if cleared {
		retro.HighlightedItemID = nil
		s.notifier.Notify(ctx, retro.ID, broadcast.EventHighlight, highlightPayload{})
	}
	return item, nil
}

// Delete removes a live item, clearing the highlight first if it pointed at it.
func (s *ItemService) Delete(ctx context.Context, retro *models.Retro, id int64) error {
	var cleared bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		item, err := s.repomanager.Items(tx).Get(ctx, retro.ID, id)
		if err != nil {
			return err
		}
		if item.Archived {
			return ErrArchived
		}
		if cleared, err = s.repomanager.Retros(tx).ClearHighlightIf(ctx, retro.ID, id); err != nil {
			return err
		}
		return s.repomanager.Items(tx).Delete(ctx, retro.ID, id)
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, retro.ID, broadcast.EventItemDeleted, map[string]int64{"id": id})
	if cleared {
		retro.HighlightedItemID = nil
		s.notifier.Notify(ctx, retro.ID, broadcast.EventHighlight, highlightPayload{})
	}
	return nil
}

// explain turns the NotFound of a live-only update into ErrArchived when
// the item exists but is archived.
func (s *ItemService) explain(ctx context.Context, retro *models.Retro, id int64, err error) error {
	return s.explainTx(ctx, s.db, retro, id, err)
}

func (s *ItemService) explainTx(ctx context.Context, db dbx.DBTX, retro *models.Retro, id int64, err error) error {
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	item, gerr := s.repomanager.Items(db).Get(ctx, retro.ID, id)
	if gerr == nil && item.Archived {
		return ErrArchived
	}
	return err
}
