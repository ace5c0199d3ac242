package sessions

import (
	"context"
	"time"
)

// Repository stores which retros each browser session has unlocked.
type Repository interface {
	Grant(ctx context.Context, sessionID, slug string) error
	// List returns the slugs unlocked by sessionID since the given time.
	List(ctx context.Context, sessionID string, since time.Time) ([]string, error)
	Revoke(ctx context.Context, sessionID, slug string) error
	// RevokeOthers drops the grants for slug held by every session but keep.
	RevokeOthers(ctx context.Context, slug, keep string) (int64, error)
	// Rename moves grants from oldSlug to newSlug.
	Rename(ctx context.Context, oldSlug, newSlug string) error
	RevokeAll(ctx context.Context, slug string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
