package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"

	keyRequestID = "request_id"
	keyUser      = "user"
	keyRetro     = "retro"
)

var errUserRequired = common.AuthFailed("login required")

func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	c.Set(keyRequestID, id)
	c.Header(requestIDHeader, id)
	c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
	c.Next()
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	args := []any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	}
	if slug := c.Param("slug"); slug != "" {
		args = append(args, "retro", slug)
	}
	s.logger.Info(c.Request.Context(), "request", args...)
}

// sessionCookie attaches the caller's session, issuing a fresh cookie when
// the browser has none.
func (s *Server) sessionCookie(c *gin.Context) {
	id, err := c.Cookie(common.SessionCookieName)
	if err != nil || uuid.Validate(id) != nil {
		id = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(common.SessionCookieName, id, int(s.config.SessionGrantTTL.Seconds()), "/", "", s.config.CookieSecure, true)
	}

	sess, err := s.svc.Sessions.Load(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), sess))
	c.Next()
}

// optionalUser resolves a bearer token to the logged-in owner. Requests
// without a token continue anonymously.
func (s *Server) optionalUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.Next()
		return
	}
	user, err := s.svc.Users.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(keyUser, user)
	c.Next()
}

func (s *Server) requireUser(c *gin.Context) {
	if currentUser(c) == nil {
		s.fail(c, errUserRequired)
		return
	}
	c.Next()
}

func (s *Server) loadRetro(c *gin.Context) {
	retro, err := s.svc.Retros.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(keyRetro, retro)
	c.Next()
}

func (s *Server) requireRetroAccess(c *gin.Context) {
	if err := s.svc.Sessions.Authorize(c.Request.Context(), currentRetro(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) *models.User {
	u, _ := c.Get(keyUser)
	user, _ := u.(*models.User)
	return user
}

func currentRetro(c *gin.Context) *models.Retro {
	r, _ := c.Get(keyRetro)
	retro, _ := r.(*models.Retro)
	return retro
}

// bind decodes the JSON body into dst. An empty body leaves dst untouched.
func bind(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		return errors.Join(common.Validation("malformed request body"), err)
	}
	return nil
}
