package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/items"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/gin-gonic/gin"
)

// GET /api/retros
func (s *Server) listRetros(c *gin.Context) {
	retros, err := s.svc.Retros.ListByUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if retros == nil {
		retros = []*models.Retro{}
	}
	c.JSON(http.StatusOK, gin.H{"retros": retros})
}

// POST /api/retros
func (s *Server) createRetro(c *gin.Context) {
	var in services.CreateRetroInput
	if err := bind(c, &in); err != nil {
		s.fail(c, err)
		return
	}

	var ownerID *int64
	if u := currentUser(c); u != nil {
		ownerID = &u.ID
	}
	retro, err := s.svc.Retros.Create(c.Request.Context(), in, ownerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", "/api/retros/"+retro.Slug)
	c.JSON(http.StatusCreated, gin.H{"retro": retro})
}

// GET /api/retros/:slug?order=votes
func (s *Server) showRetro(c *gin.Context) {
	order := items.OrderCreated
	if c.Query("order") == "votes" {
		order = items.OrderVotes
	}
	board, err := s.svc.Retros.Board(c.Request.Context(), currentRetro(c), order)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// PATCH /api/retros/:slug
func (s *Server) updateRetro(c *gin.Context) {
	var upd services.RetroUpdate
	if err := bind(c, &upd); err != nil {
		s.fail(c, err)
		return
	}
	retro, err := s.svc.Retros.Update(c.Request.Context(), currentRetro(c), upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retro": retro})
}

// DELETE /api/retros/:slug
func (s *Server) deleteRetro(c *gin.Context) {
	if err := s.svc.Retros.Delete(c.Request.Context(), currentRetro(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/retros/:slug/archive  body: {"send_archive_email": true}
//
// Without the field the retro's stored preference is used.
func (s *Server) archiveRetro(c *gin.Context) {
	var req struct {
		SendArchiveEmail *bool `json:"send_archive_email"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	retro := currentRetro(c)
	send := retro.SendArchiveEmail
	if req.SendArchiveEmail != nil {
		send = *req.SendArchiveEmail
	}

	res, err := s.svc.Archives.Archive(c.Request.Context(), retro, send)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/retros/:slug/magic_link
func (s *Server) issueMagicLink(c *gin.Context) {
	link, err := s.svc.Sessions.IssueMagicLink(currentRetro(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}
