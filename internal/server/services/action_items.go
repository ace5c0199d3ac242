package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
)

// ActionItemUpdate holds the action item fields to change.
type ActionItemUpdate struct {
	Description *string `json:"description"`
	Done        *bool   `json:"done"`
}

type ActionItemService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    *Notifier
}

func NewActionItemService(db *sql.DB, m repomanager.RepositoryManager, n *Notifier) *ActionItemService {
	return &ActionItemService{db: db, repomanager: m, notifier: n}
}

func (s *ActionItemService) Create(ctx context.Context, retro *models.Retro, description string) (*models.ActionItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}

	a, err := s.repomanager.ActionItems(s.db).Create(ctx, &models.ActionItem{RetroID: retro.ID, Description: description})
	if err != nil {
		return nil, fmt.Errorf("create action item: %w", err)
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventActionChanged, a)
	return a, nil
}

func (s *ActionItemService) Update(ctx context.Context, retro *models.Retro, id int64, upd ActionItemUpdate) (*models.ActionItem, error) {
	repo := s.repomanager.ActionItems(s.db)

	a, err := repo.Get(ctx, retro.ID, id)
	if err != nil {
		return nil, err
	}
	if a.Archived {
		return nil, ErrArchived
	}
	if upd.Description != nil {
		a.Description = strings.TrimSpace(*upd.Description)
		if a.Description == "" {
			return nil, ErrDescriptionRequired
		}
	}
	if upd.Done != nil {
		a.Done = *upd.Done
	}

	if a, err = repo.Update(ctx, a); err != nil {
		return nil, s.explain(ctx, retro, id, err)
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventActionChanged, a)
	return a, nil
}

func (s *ActionItemService) ToggleDone(ctx context.Context, retro *models.Retro, id int64) (*models.ActionItem, error) {
	a, err := s.repomanager.ActionItems(s.db).ToggleDone(ctx, retro.ID, id)
	if err != nil {
		return nil, s.explain(ctx, retro, id, err)
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventActionChanged, a)
	return a, nil
}

func (s *ActionItemService) Delete(ctx context.Context, retro *models.Retro, id int64) error {
	repo := s.repomanager.ActionItems(s.db)

	a, err := repo.Get(ctx, retro.ID, id)
	if err != nil {
		return err
	}
	if a.Archived {
		return ErrArchived
	}
	if err := repo.Delete(ctx, retro.ID, id); err != nil {
		return err
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventActionDeleted, map[string]int64{"id": id})
	return nil
}

func (s *ActionItemService) explain(ctx context.Context, retro *models.Retro, id int64, err error) error {
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	a, gerr := s.repomanager.ActionItems(s.db).Get(ctx, retro.ID, id)
	if gerr == nil && a.Archived {
		return ErrArchived
	}
	return err
}
