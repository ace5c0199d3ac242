package users

import (
	"context"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
)

type Repository interface {
	// Upsert creates the user or refreshes name and domain of the user with
	// the same email.
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
