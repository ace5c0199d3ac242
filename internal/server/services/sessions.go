package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/auth"
	"github.com/dmitrijs2005/postfacto/internal/server/config"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrIncorrectPassword = common.AuthFailed("incorrect password")
	ErrInvalidMagicLink  = common.AuthFailed("invalid or expired link")
	ErrMagicLinkDisabled = common.Validation("magic link is disabled")
	errNoSession         = errors.New("no session in context")
)

// MagicLink is a shareable URL that unlocks one retro.
type MagicLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionService is the per-retro gate. A session may access a private
// retro only after it authenticated into that retro's slug; grants for
// different slugs are independent.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	secret      []byte
	linkTTL     time.Duration
	grantTTL    time.Duration
	publicURL   string
	logger      logging.Logger
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		secret:      []byte(cfg.SecretKey),
		linkTTL:     cfg.MagicLinkValidityDuration,
		grantTTL:    cfg.SessionGrantTTL,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		logger:      logger,
		now:         time.Now,
	}
}

// Load returns the session with its unexpired grants.
func (s *SessionService) Load(ctx context.Context, sessionID string) (*session.Session, error) {
	sess := session.New(sessionID)
	slugs, err := s.repomanager.Sessions(s.db).List(ctx, sessionID, s.now().Add(-s.grantTTL))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	for _, slug := range slugs {
		sess.Grant(slug)
	}
	return sess, nil
}

// Authorize lets the caller through a public retro, or a private retro its
// session has unlocked.
func (s *SessionService) Authorize(ctx context.Context, retro *models.Retro) error {
	if !retro.IsPrivate {
		return nil
	}
	if session.FromContext(ctx).Granted(retro.Slug) {
		return nil
	}
	return common.ErrorAuthRequired
}

// Authenticate checks password against the retro and records a grant for
// its slug. A failed attempt leaves the session untouched.
func (s *SessionService) Authenticate(ctx context.Context, slug, password string) (*models.Retro, error) {
	retro, err := s.repomanager.Retros(s.db).GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if retro.IsPrivate {
		if err := bcrypt.CompareHashAndPassword(retro.PasswordHash, []byte(password)); err != nil {
			return nil, ErrIncorrectPassword
		}
	}
	if err := s.Grant(ctx, retro.Slug); err != nil {
		return nil, err
	}
	return retro, nil
}

// VerifyMagicLink resolves a magic-link token to its retro without touching
// any session.
func (s *SessionService) VerifyMagicLink(ctx context.Context, token string) (*models.Retro, error) {
	retroID, nonce, err := auth.ParseJoinToken(token, s.secret)
	if err != nil {
		return nil, ErrInvalidMagicLink
	}
	retro, err := s.repomanager.Retros(s.db).GetByID(ctx, retroID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidMagicLink
		}
		return nil, err
	}
	if !retro.MagicLinkEnabled || retro.JoinToken == "" ||
		subtle.ConstantTimeCompare([]byte(retro.JoinToken), []byte(nonce)) != 1 {
		return nil, ErrInvalidMagicLink
	}
	return retro, nil
}

// AuthenticateMagicLink unlocks exactly the retro the token was issued for.
func (s *SessionService) AuthenticateMagicLink(ctx context.Context, token string) (*models.Retro, error) {
	retro, err := s.VerifyMagicLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.Grant(ctx, retro.Slug); err != nil {
		return nil, err
	}
	return retro, nil
}

// IssueMagicLink signs a link bound to the retro's current join nonce.
func (s *SessionService) IssueMagicLink(retro *models.Retro) (*MagicLink, error) {
	if !retro.MagicLinkEnabled || retro.JoinToken == "" {
		return nil, ErrMagicLinkDisabled
	}
	token, err := auth.GenerateJoinToken(retro.ID, retro.JoinToken, s.secret, s.linkTTL)
	if err != nil {
		return nil, fmt.Errorf("sign magic link: %w", err)
	}
	return &MagicLink{
		Token:     token,
		URL:       s.publicURL + "/api/join/" + url.PathEscape(token),
		ExpiresAt: s.now().Add(s.linkTTL),
	}, nil
}

// Grant records access to slug for the session in ctx.
func (s *SessionService) Grant(ctx context.Context, slug string) error {
	sess := session.FromContext(ctx)
	if sess == nil {
		return errNoSession
	}
	if err := s.repomanager.Sessions(s.db).Grant(ctx, sess.ID, slug); err != nil {
		return fmt.Errorf("grant %s: %w", slug, err)
	}
	sess.Grant(slug)
	return nil
}

// Logout forgets the grant for slug only.
func (s *SessionService) Logout(ctx context.Context, slug string) error {
	sess := session.FromContext(ctx)
	if sess == nil {
		return nil
	}
	if err := s.repomanager.Sessions(s.db).Revoke(ctx, sess.ID, slug); err != nil {
		return fmt.Errorf("revoke %s: %w", slug, err)
	}
	sess.Revoke(slug)
	return nil
}

// PurgeExpired deletes grants older than the grant TTL.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.now().Add(-s.grantTTL))
}
