package retroctl

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/config"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/dmitrijs2005/postfacto/internal/server/shared/db"
)

// Backend is the server state the admin commands operate on.
type Backend interface {
	Migrate(ctx context.Context) error
	MagicLink(ctx context.Context, slug string) (*services.MagicLink, error)
	SetPassword(ctx context.Context, slug, password string) error
	Close() error
}

// postgresBackend runs the admin commands directly against the database,
// through the same services the server uses.
type postgresBackend struct {
	db       *sql.DB
	manager  repomanager.RepositoryManager
	retros   *services.RetroService
	sessions *services.SessionService
}

func openPostgres(ctx context.Context, cfg *config.Config) (Backend, error) {
	conn, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.LogLevel)})))
	rm := repomanager.NewPostgresRepositoryManager()

	// Changes made here reach live viewers on their next reload only.
	notifier := services.NewNotifier(nil, logger)

	return &postgresBackend{
		db:       conn,
		manager:  rm,
		retros:   services.NewRetroService(conn, rm, notifier),
		sessions: services.NewSessionService(conn, rm, cfg, logger),
	}, nil
}

func (b *postgresBackend) Migrate(ctx context.Context) error {
	return b.manager.RunMigrations(ctx, b.db)
}

func (b *postgresBackend) MagicLink(ctx context.Context, slug string) (*services.MagicLink, error) {
	retro, err := b.retros.Get(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("retro %q: %w", slug, err)
	}
	return b.sessions.IssueMagicLink(retro)
}

func (b *postgresBackend) SetPassword(ctx context.Context, slug, password string) error {
	retro, err := b.retros.Get(ctx, slug)
	if err != nil {
		return fmt.Errorf("retro %q: %w", slug, err)
	}
	_, err = b.retros.Update(ctx, retro, services.RetroUpdate{Password: &password})
	return err
}

func (b *postgresBackend) Close() error {
	return b.db.Close()
}
