package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/gin-gonic/gin"
)

var errAccessTokenRequired = common.Validation("access_token required")

// POST /api/retros/:slug/session  body: {"password":"..."}
func (s *Server) authenticate(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	retro, err := s.svc.Sessions.Authenticate(c.Request.Context(), currentRetro(c).Slug, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retro": retro.Summary()})
}

// DELETE /api/retros/:slug/session
func (s *Server) logout(c *gin.Context) {
	if err := s.svc.Sessions.Logout(c.Request.Context(), currentRetro(c).Slug); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/join/:token
func (s *Server) join(c *gin.Context) {
	retro, err := s.svc.Sessions.AuthenticateMagicLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retro": retro.Summary(), "redirect": "/retros/" + retro.Slug})
}

// POST /api/login  body: {"access_token":"..."}
func (s *Server) login(c *gin.Context) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if req.AccessToken == "" {
		s.fail(c, errAccessTokenRequired)
		return
	}
	res, err := s.svc.Users.Login(c.Request.Context(), req.AccessToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
