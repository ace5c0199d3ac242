// Package server wires the Postfacto server together: storage, services, the
// JSON API and the live event feed, and runs them until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/config"
	"github.com/dmitrijs2005/postfacto/internal/server/httpapi"
	"github.com/dmitrijs2005/postfacto/internal/server/identity"
	"github.com/dmitrijs2005/postfacto/internal/server/mailer"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/dmitrijs2005/postfacto/internal/server/shared/db"
	"github.com/dmitrijs2005/postfacto/internal/server/snapshots"

	gs "github.com/dmitrijs2005/postfacto/internal/server/grpc"
)

const grantPurgeInterval = time.Hour

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	db        *sql.DB
	hub       *broadcast.Hub

	retros      *services.RetroService
	sessions    *services.SessionService
	items       *services.ItemService
	actionItems *services.ActionItemService
	archives    *services.ArchiveService
	users       *services.UserService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, closer := logging.New(logging.Options{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	})

	conn, err := db.Open(ctx, c.DatabaseDSN)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if c.AutoMigrate {
		if err := rm.RunMigrations(ctx, conn); err != nil {
			_ = conn.Close()
			_ = closer.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	opts := services.ArchiveOptions{
		Mailer:        newMailer(c),
		ArchiveEmails: c.ArchiveEmails,
		PublicURL:     c.PublicURL,
	}
	if c.S3Bucket != "" {
		store, err := snapshots.New(ctx, snapshots.Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			_ = conn.Close()
			_ = closer.Close()
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		opts.Store = store
	}

	hub := broadcast.NewHub()
	notifier := services.NewNotifier(hub, logger)

	return &App{
		config:      c,
		logger:      logger,
		logCloser:   closer,
		db:          conn,
		hub:         hub,
		retros:      services.NewRetroService(conn, rm, notifier),
		sessions:    services.NewSessionService(conn, rm, c, logger),
		items:       services.NewItemService(conn, rm, notifier),
		actionItems: services.NewActionItemService(conn, rm, notifier),
		archives:    services.NewArchiveService(conn, rm, notifier, opts, logger),
		users:       services.NewUserService(conn, rm, newIdentityClient(c), []byte(c.SecretKey), c.UserTokenValidityDuration),
	}, nil
}

func newIdentityClient(c *config.Config) identity.Client {
	if c.IdentityMock {
		return identity.MockClient{}
	}
	return identity.NewGoogleClient(c.IdentityURL, c.IdentityHostedDomain)
}

func newMailer(c *config.Config) mailer.Mailer {
	if !c.ArchiveEmails || c.SMTPHost == "" {
		return mailer.NopMailer{}
	}
	return mailer.NewSMTPMailer(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.MailFrom)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config, app.logger, httpapi.Services{
		Retros:      app.retros,
		Sessions:    app.sessions,
		Items:       app.items,
		ActionItems: app.actionItems,
		Archives:    app.archives,
		Users:       app.users,
	}, app.hub)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.retros, app.sessions, app.hub)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeGrants drops expired retro unlocks until ctx is done.
func (app *App) purgeGrants(ctx context.Context) {
	ticker := time.NewTicker(grantPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.sessions.PurgeExpired(ctx)
			if err != nil {
				app.logger.Warn(ctx, "purge expired grants", "err", err)
				continue
			}
			app.logger.Debug(ctx, "purged expired grants", "count", n)
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "env", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeGrants(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "close db", "err", err)
	}
	_ = app.logCloser.Close()
}
