// Package services contains server-side business logic: the retro session
// gate, retro settings, item and action-item mutation rules, archival and
// owner login.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/items"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNameRequired     = common.Validation("name required")
	ErrSlugInvalid      = common.Validation("slug is invalid")
	ErrPasswordRequired = common.Validation("password required for a private retro")
)

// generateFromPassword is a seam for tests.
var generateFromPassword = bcrypt.GenerateFromPassword

// CreateRetroInput is what a caller submits to create a retro. An empty
// Slug is derived from Name.
type CreateRetroInput struct {
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	Password         string `json:"password"`
	IsPrivate        bool   `json:"is_private"`
	VideoLink        string `json:"video_link"`
	MagicLinkEnabled bool   `json:"magic_link_enabled"`
}

// RetroUpdate holds the settings to change; nil fields stay as they are.
type RetroUpdate struct {
	Name             *string `json:"name"`
	Slug             *string `json:"slug"`
	Password         *string `json:"password"`
	IsPrivate        *bool   `json:"is_private"`
	VideoLink        *string `json:"video_link"`
	MagicLinkEnabled *bool   `json:"magic_link_enabled"`
	SendArchiveEmail *bool   `json:"send_archive_email"`
}

// Board is the live state of a retro as shown to viewers.
type Board struct {
	Retro           *models.Retro                      `json:"retro"`
	Items           map[models.Category][]*models.Item `json:"items"`
	ActionItems     []*models.ActionItem               `json:"action_items"`
	HighlightedItem *models.Item                       `json:"highlighted_item"`
}

type RetroService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    *Notifier
}

func NewRetroService(db *sql.DB, m repomanager.RepositoryManager, n *Notifier) *RetroService {
	return &RetroService{db: db, repomanager: m, notifier: n}
}

// Create stores a new retro owned by ownerID (nil for anonymous creators)
// and unlocks it for the creator's session.
func (s *RetroService) Create(ctx context.Context, in CreateRetroInput, ownerID *int64) (*models.Retro, error) {
	retro := &models.Retro{
		Name:             strings.TrimSpace(in.Name),
		Slug:             strings.TrimSpace(in.Slug),
		IsPrivate:        in.IsPrivate,
		VideoLink:        strings.TrimSpace(in.VideoLink),
		MagicLinkEnabled: in.MagicLinkEnabled,
		SendArchiveEmail: true,
		UserID:           ownerID,
	}
	if retro.Name == "" {
		return nil, ErrNameRequired
	}
	if retro.Slug == "" {
		retro.Slug = models.Slugify(retro.Name)
	}
	if !models.ValidSlug(retro.Slug) {
		return nil, ErrSlugInvalid
	}
	if in.Password != "" {
		hash, err := generateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		retro.PasswordHash = hash
	}
	if retro.IsPrivate && retro.PasswordHash == nil {
		return nil, ErrPasswordRequired
	}
	if retro.MagicLinkEnabled {
		retro.JoinToken = uuid.NewString()
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if retro, err = s.repomanager.Retros(tx).Create(ctx, retro); err != nil {
			return err
		}
		// grants left over from a deleted retro with the same slug
		if err := s.repomanager.Sessions(tx).RevokeAll(ctx, retro.Slug); err != nil {
			return err
		}
		if sess := session.FromContext(ctx); sess != nil {
			if err := s.repomanager.Sessions(tx).Grant(ctx, sess.ID, retro.Slug); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sess := session.FromContext(ctx); sess != nil {
		sess.Grant(retro.Slug)
	}
	return retro, nil
}

func (s *RetroService) Get(ctx context.Context, slug string) (*models.Retro, error) {
	return s.repomanager.Retros(s.db).GetBySlug(ctx, slug)
}

// Board returns the live items grouped by category, the live action items
// and the highlighted item.
func (s *RetroService) Board(ctx context.Context, retro *models.Retro, order items.Order) (*Board, error) {
	var (
		live    []*models.Item
		actions []*models.ActionItem
	)
	err := dbx.WithTx(ctx, s.db, dbx.ReadSnapshot, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if live, err = s.repomanager.Items(tx).ListLive(ctx, retro.ID, order); err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		if actions, err = s.repomanager.ActionItems(tx).ListLive(ctx, retro.ID); err != nil {
			return fmt.Errorf("list action items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b := &Board{
		Retro:       retro,
		Items:       make(map[models.Category][]*models.Item, len(models.Categories)),
		ActionItems: actions,
	}
	for _, c := range models.Categories {
		b.Items[c] = []*models.Item{}
	}
	for _, it := range live {
		b.Items[it.Category] = append(b.Items[it.Category], it)
		if retro.HighlightedItemID != nil && *retro.HighlightedItemID == it.ID {
			b.HighlightedItem = it
		}
	}
	if b.ActionItems == nil {
		b.ActionItems = []*models.ActionItem{}
	}
	return b, nil
}

func (s *RetroService) ListByUser(ctx context.Context, userID int64) ([]*models.Retro, error) {
	return s.repomanager.Retros(s.db).ListByUser(ctx, userID)
}

// Update applies upd to retro. Renaming the slug carries existing grants
// over; changing the password or the privacy revokes every other session's
// grant and tells connected viewers to log in again.
func (s *RetroService) Update(ctx context.Context, retro *models.Retro, upd RetroUpdate) (*models.Retro, error) {
	next := *retro
	credentialsChanged := false

	if upd.Name != nil {
		next.Name = strings.TrimSpace(*upd.Name)
		if next.Name == "" {
			return nil, ErrNameRequired
		}
	}
	if upd.Slug != nil {
		next.Slug = strings.TrimSpace(*upd.Slug)
		if !models.ValidSlug(next.Slug) {
			return nil, ErrSlugInvalid
		}
	}
	if upd.VideoLink != nil {
		next.VideoLink = strings.TrimSpace(*upd.VideoLink)
	}
	if upd.IsPrivate != nil && *upd.IsPrivate != retro.IsPrivate {
		next.IsPrivate = *upd.IsPrivate
		credentialsChanged = true
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			next.PasswordHash = nil
		} else {
			hash, err := generateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			next.PasswordHash = hash
		}
		credentialsChanged = true
	}
	if next.IsPrivate && next.PasswordHash == nil {
		return nil, ErrPasswordRequired
	}
	if upd.MagicLinkEnabled != nil {
		switch {
		case *upd.MagicLinkEnabled && !retro.MagicLinkEnabled:
			next.JoinToken = uuid.NewString()
		case !*upd.MagicLinkEnabled:
			next.JoinToken = ""
		}
		next.MagicLinkEnabled = *upd.MagicLinkEnabled
	}
	if upd.SendArchiveEmail != nil {
		next.SendArchiveEmail = *upd.SendArchiveEmail
	}

	keep := ""
	if sess := session.FromContext(ctx); sess != nil {
		keep = sess.ID
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Retros(tx).Update(ctx, &next); err != nil {
			return err
		}
		grants := s.repomanager.Sessions(tx)
		if next.Slug != retro.Slug {
			if err := grants.Rename(ctx, retro.Slug, next.Slug); err != nil {
				return err
			}
		}
		if credentialsChanged {
			if _, err := grants.RevokeOthers(ctx, next.Slug, keep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sess := session.FromContext(ctx); sess != nil && next.Slug != retro.Slug && sess.Granted(retro.Slug) {
		sess.Revoke(retro.Slug)
		sess.Grant(next.Slug)
	}

	s.notifier.Notify(ctx, next.ID, broadcast.EventRetroUpdated, &next)
	if credentialsChanged {
		s.notifier.Notify(ctx, next.ID, broadcast.EventForceRelogin, map[string]string{"originator_id": keep})
	}
	return &next, nil
}

// Delete removes the retro with its items, action items, archives and grants.
func (s *RetroService) Delete(ctx context.Context, retro *models.Retro) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Retros(tx).Delete(ctx, retro.ID); err != nil {
			return err
		}
		return s.repomanager.Sessions(tx).RevokeAll(ctx, retro.Slug)
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, retro.ID, broadcast.EventRetroDeleted, nil)
	return nil
}
