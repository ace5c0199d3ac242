// Package httpapi is the JSON API of the server, built on gin.
//
// Every route under /api/retros/:slug resolves the retro first; routes that
// read or change the board also pass the session gate, so a private retro is
// only reachable from a session that unlocked it.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/config"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/items"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	defaultHeartbeat = 25 * time.Second
	shutdownTimeout  = 10 * time.Second
)

type RetroService interface {
	Create(ctx context.Context, in services.CreateRetroInput, ownerID *int64) (*models.Retro, error)
	Get(ctx context.Context, slug string) (*models.Retro, error)
	Board(ctx context.Context, retro *models.Retro, order items.Order) (*services.Board, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Retro, error)
	Update(ctx context.Context, retro *models.Retro, upd services.RetroUpdate) (*models.Retro, error)
	Delete(ctx context.Context, retro *models.Retro) error
}

type SessionService interface {
	Load(ctx context.Context, sessionID string) (*session.Session, error)
	Authorize(ctx context.Context, retro *models.Retro) error
	Authenticate(ctx context.Context, slug, password string) (*models.Retro, error)
	AuthenticateMagicLink(ctx context.Context, token string) (*models.Retro, error)
	IssueMagicLink(retro *models.Retro) (*services.MagicLink, error)
	Logout(ctx context.Context, slug string) error
}

type ItemService interface {
	Create(ctx context.Context, retro *models.Retro, category models.Category, description string) (*models.Item, error)
	Update(ctx context.Context, retro *models.Retro, id int64, upd services.ItemUpdate) (*models.Item, error)
	Delete(ctx context.Context, retro *models.Retro, id int64) error
	Vote(ctx context.Context, retro *models.Retro, id int64) (*models.Item, error)
	Highlight(ctx context.Context, retro *models.Retro, id int64) error
	Unhighlight(ctx context.Context, retro *models.Retro) error
	MarkDone(ctx context.Context, retro *models.Retro, id int64) (*models.Item, error)
}

type ActionItemService interface {
	Create(ctx context.Context, retro *models.Retro, description string) (*models.ActionItem, error)
	Update(ctx context.Context, retro *models.Retro, id int64, upd services.ActionItemUpdate) (*models.ActionItem, error)
	ToggleDone(ctx context.Context, retro *models.Retro, id int64) (*models.ActionItem, error)
	Delete(ctx context.Context, retro *models.Retro, id int64) error
}

type ArchiveService interface {
	Archive(ctx context.Context, retro *models.Retro, sendEmail bool) (*services.ArchiveResult, error)
	List(ctx context.Context, retro *models.Retro) ([]*models.Archive, error)
	Get(ctx context.Context, retro *models.Retro, id int64) (*services.ArchiveDetail, error)
	ExportURL(ctx context.Context, retro *models.Retro, id int64) (string, error)
}

type UserService interface {
	Login(ctx context.Context, accessToken string) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Subscriber hands out live event subscriptions per retro topic.
type Subscriber interface {
	Subscribe(topic string) *broadcast.Subscription
}

// Services bundles the business logic the API delegates to.
type Services struct {
	Retros      RetroService
	Sessions    SessionService
	Items       ItemService
	ActionItems ActionItemService
	Archives    ArchiveService
	Users       UserService
}

type Server struct {
	address   string
	config    *config.Config
	logger    logging.Logger
	svc       Services
	events    Subscriber
	heartbeat time.Duration
	engine    *gin.Engine
}

func NewServer(c *config.Config, l logging.Logger, svc Services, events Subscriber) *Server {
	if c.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		address:   c.EndpointAddrHTTP,
		config:    c,
		logger:    l.With("module", "http_server"),
		svc:       svc,
		events:    events,
		heartbeat: defaultHeartbeat,
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.requestID, s.recovery())
	if s.config.Instrumentation {
		r.Use(s.requestLogger)
	}
	r.Use(cors.New(s.corsConfig()))

	api := r.Group("/api", s.sessionCookie, s.optionalUser)
	api.POST("/login", s.login)
	api.GET("/join/:token", s.join)
	api.GET("/retros", s.requireUser, s.listRetros)
	api.POST("/retros", s.createRetro)

	retro := api.Group("/retros/:slug", s.loadRetro)
	retro.POST("/session", s.authenticate)
	retro.DELETE("/session", s.logout)

	gated := retro.Group("", s.requireRetroAccess)
	gated.GET("", s.showRetro)
	gated.PATCH("", s.updateRetro)
	gated.DELETE("", s.deleteRetro)
	gated.POST("/archive", s.archiveRetro)
	gated.POST("/magic_link", s.issueMagicLink)
	gated.GET("/events", s.streamEvents)

	gated.POST("/items", s.createItem)
	gated.PATCH("/items/:id", s.updateItem)
	gated.DELETE("/items/:id", s.deleteItem)
	gated.POST("/items/:id/vote", s.voteItem)
	gated.POST("/items/:id/highlight", s.highlightItem)
	gated.DELETE("/items/:id/highlight", s.unhighlightItem)
	gated.PATCH("/items/:id/done", s.markItemDone)

	gated.POST("/action_items", s.createActionItem)
	gated.PATCH("/action_items/:id", s.updateActionItem)
	gated.PATCH("/action_items/:id/toggle_done", s.toggleActionItem)
	gated.DELETE("/action_items/:id", s.deleteActionItem)

	gated.GET("/archives", s.listArchives)
	gated.GET("/archives/:id", s.showArchive)
	gated.GET("/archives/:id/export", s.exportArchive)

	r.NoRoute(func(c *gin.Context) { s.fail(c, errRouteNotFound) })
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders:    []string{"Location", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(s.config.CORSOrigins) == 0 || (len(s.config.CORSOrigins) == 1 && s.config.CORSOrigins[0] == "*") {
		// credentials cannot be combined with a literal wildcard origin
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = s.config.CORSOrigins
	}
	return cfg
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with ctx instead of holding Shutdown open
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "err", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
