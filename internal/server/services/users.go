package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/server/auth"
	"github.com/dmitrijs2005/postfacto/internal/server/identity"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
)

var ErrAccessTokenRequired = common.Validation("access token required")

// LoginResult is returned to a user who signed in with the identity provider.
type LoginResult struct {
	User      *models.User `json:"user"`
	AuthToken string       `json:"auth_token"`
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	identity    identity.Client
	secret      []byte
	tokenTTL    time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, idc identity.Client, secret []byte, tokenTTL time.Duration) *UserService {
	return &UserService{db: db, repomanager: m, identity: idc, secret: secret, tokenTTL: tokenTTL}
}

// Login trades an identity provider access token for a user access token,
// creating the user on first sight.
func (s *UserService) Login(ctx context.Context, accessToken string) (*LoginResult, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrAccessTokenRequired
	}

	id, err := s.identity.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).Upsert(ctx, &models.User{
		Email:  strings.ToLower(id.Email),
		Name:   id.Name,
		Domain: id.Domain,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	token, err := auth.GenerateToken(user.ID, s.secret, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrorInternal)
	}

	return &LoginResult{User: user, AuthToken: token}, nil
}

// Authenticate resolves a user access token to its user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := auth.GetUserIDFromToken(token, s.secret)
	if err != nil {
		return nil, common.AuthFailed("invalid auth token")
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.AuthFailed("invalid auth token")
		}
		return nil, err
	}
	return user, nil
}
