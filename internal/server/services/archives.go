package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/mailer"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/postfacto/internal/server/snapshots"
)

const exportLinkTTL = 24 * time.Hour

// SnapshotStore keeps exported archive snapshots.
type SnapshotStore interface {
	Put(ctx context.Context, key string, body []byte) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ArchiveResult describes one archive transition.
type ArchiveResult struct {
	Archive     *models.Archive `json:"archive"`
	Items       int64           `json:"archived_items"`
	ActionItems int64           `json:"archived_action_items"`
	EmailSent   bool            `json:"email_sent"`
	Retro       *models.Retro   `json:"retro"`
}

// ArchiveDetail is an archive with everything that was swept into it.
type ArchiveDetail struct {
	Archive     *models.Archive      `json:"archive"`
	Items       []*models.Item       `json:"items"`
	ActionItems []*models.ActionItem `json:"action_items"`
}

type ArchiveOptions struct {
	Store         SnapshotStore
	Mailer        mailer.Mailer
	ArchiveEmails bool
	PublicURL     string
}

type ArchiveService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	notifier      *Notifier
	store         SnapshotStore
	mailer        mailer.Mailer
	archiveEmails bool
	publicURL     string
	logger        logging.Logger
	now           func() time.Time
}

func NewArchiveService(db *sql.DB, m repomanager.RepositoryManager, n *Notifier, opts ArchiveOptions, logger logging.Logger) *ArchiveService {
	ml := opts.Mailer
	if ml == nil {
		ml = mailer.NopMailer{}
	}
	return &ArchiveService{
		db:            db,
		repomanager:   m,
		notifier:      n,
		store:         opts.Store,
		mailer:        ml,
		archiveEmails: opts.ArchiveEmails,
		publicURL:     strings.TrimRight(opts.PublicURL, "/"),
		logger:        logger,
		now:           time.Now,
	}
}

// Archive closes the current round of the retro. Every live item and every
// live action item that is done move into a new archive; open action items
// stay on the board. The highlight is cleared and sendEmail is remembered as
// the retro's preference.
//
// Export and email happen after the commit and never undo it.
func (s *ArchiveService) Archive(ctx context.Context, retro *models.Retro, sendEmail bool) (*ArchiveResult, error) {
	at := s.now().UTC()
	res := &ArchiveResult{}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, err := s.repomanager.Retros(tx).GetByIDForUpdate(ctx, retro.ID)
		if err != nil {
			return err
		}
		if res.Archive, err = s.repomanager.Archives(tx).Create(ctx, locked.ID, at); err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		if res.Items, err = s.repomanager.Items(tx).ArchiveLive(ctx, locked.ID, res.Archive.ID, at); err != nil {
			return fmt.Errorf("archive items: %w", err)
		}
		if res.ActionItems, err = s.repomanager.ActionItems(tx).ArchiveDone(ctx, locked.ID, res.Archive.ID, at); err != nil {
			return fmt.Errorf("archive action items: %w", err)
		}
		if err := s.repomanager.Retros(tx).SetHighlight(ctx, locked.ID, nil); err != nil {
			return err
		}
		if err := s.repomanager.Retros(tx).SetSendArchiveEmail(ctx, locked.ID, sendEmail); err != nil {
			return err
		}

		locked.HighlightedItemID = nil
		locked.SendArchiveEmail = sendEmail
		res.Retro = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "retro archived",
		"retro_id", retro.ID, "archive_id", res.Archive.ID,
		"items", res.Items, "action_items", res.ActionItems)
	s.notifier.Notify(ctx, retro.ID, broadcast.EventRetroArchived, res)

	detail, err := s.detail(ctx, res.Archive)
	if err != nil {
		s.logger.Error(ctx, "load archive", "archive_id", res.Archive.ID, "err", err)
		return res, nil
	}

	exported := s.export(ctx, res.Retro, detail)
	if sendEmail {
		res.EmailSent = s.sendEmail(ctx, res.Retro, detail, exported)
	}
	return res, nil
}

func (s *ArchiveService) List(ctx context.Context, retro *models.Retro) ([]*models.Archive, error) {
	return s.repomanager.Archives(s.db).ListByRetro(ctx, retro.ID)
}

func (s *ArchiveService) Get(ctx context.Context, retro *models.Retro, id int64) (*ArchiveDetail, error) {
	a, err := s.repomanager.Archives(s.db).Get(ctx, retro.ID, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, a)
}

// ExportURL re-exports the archive snapshot and returns a presigned link
// to it.
func (s *ArchiveService) ExportURL(ctx context.Context, retro *models.Retro, id int64) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("snapshot storage is not configured: %w", common.ErrorNotFound)
	}
	detail, err := s.Get(ctx, retro, id)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(snapshot(retro, detail))
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	key := snapshots.Key(retro.ID, id)
	if err := s.store.Put(ctx, key, body); err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, key, exportLinkTTL)
}

func (s *ArchiveService) detail(ctx context.Context, a *models.Archive) (*ArchiveDetail, error) {
	its, err := s.repomanager.Items(s.db).ListByArchive(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list archived items: %w", err)
	}
	actions, err := s.repomanager.ActionItems(s.db).ListByArchive(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list archived action items: %w", err)
	}
	if its == nil {
		its = []*models.Item{}
	}
	if actions == nil {
		actions = []*models.ActionItem{}
	}
	return &ArchiveDetail{Archive: a, Items: its, ActionItems: actions}, nil
}

// export stores the snapshot and returns its download link, or "" when
// storage is off or failing.
func (s *ArchiveService) export(ctx context.Context, retro *models.Retro, detail *ArchiveDetail) string {
	if s.store == nil {
		return ""
	}
	body, err := json.Marshal(snapshot(retro, detail))
	if err != nil {
		s.logger.Error(ctx, "marshal snapshot", "archive_id", detail.Archive.ID, "err", err)
		return ""
	}
	key := snapshots.Key(retro.ID, detail.Archive.ID)
	if err := s.store.Put(ctx, key, body); err != nil {
		s.logger.Warn(ctx, "export snapshot", "key", key, "err", err)
		return ""
	}
	link, err := s.store.PresignGet(ctx, key, exportLinkTTL)
	if err != nil {
		s.logger.Warn(ctx, "presign snapshot", "key", key, "err", err)
		return ""
	}
	return link
}

// sendEmail notifies the retro owner. A retro without an owner or with
// emails disabled globally is skipped silently.
func (s *ArchiveService) sendEmail(ctx context.Context, retro *models.Retro, detail *ArchiveDetail, exportURL string) bool {
	if !s.archiveEmails || !retro.HasOwner() {
		return false
	}
	owner, err := s.repomanager.Users(s.db).GetByID(ctx, *retro.UserID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "load retro owner", "retro_id", retro.ID, "err", err)
		}
		return false
	}

	done := make([]string, 0, len(detail.ActionItems))
	for _, a := range detail.ActionItems {
		done = append(done, a.Description)
	}
	retroURL := s.publicURL + "/retros/" + retro.Slug
	data := mailer.ArchiveEmail{
		RetroName:   retro.Name,
		RetroURL:    retroURL,
		ArchiveURL:  fmt.Sprintf("%s/archives/%d", retroURL, detail.Archive.ID),
		ExportURL:   exportURL,
		ArchivedAt:  detail.Archive.CreatedAt,
		ActionItems: done,
	}
	if err := s.mailer.Send(ctx, owner.Email, data); err != nil {
		s.logger.Error(ctx, "send archive email", "retro_id", retro.ID, "to", owner.Email, "err", err)
		return false
	}
	return true
}

func snapshot(retro *models.Retro, detail *ArchiveDetail) models.ArchiveSnapshot {
	snap := models.ArchiveSnapshot{
		Retro:       retro.Summary(),
		Archive:     *detail.Archive,
		Items:       make([]models.Item, 0, len(detail.Items)),
		ActionItems: make([]models.ActionItem, 0, len(detail.ActionItems)),
	}
	for _, it := range detail.Items {
		snap.Items = append(snap.Items, *it)
	}
	for _, a := range detail.ActionItems {
		snap.ActionItems = append(snap.ActionItems, *a)
	}
	return snap
}
