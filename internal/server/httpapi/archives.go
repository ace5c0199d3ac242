package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/gin-gonic/gin"
)

// GET /api/retros/:slug/archives
func (s *Server) listArchives(c *gin.Context) {
	archives, err := s.svc.Archives.List(c.Request.Context(), currentRetro(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if archives == nil {
		archives = []*models.Archive{}
	}
	c.JSON(http.StatusOK, gin.H{"archives": archives})
}

// GET /api/retros/:slug/archives/:id
func (s *Server) showArchive(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	detail, err := s.svc.Archives.Get(c.Request.Context(), currentRetro(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GET /api/retros/:slug/archives/:id/export
func (s *Server) exportArchive(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	link, err := s.svc.Archives.ExportURL(c.Request.Context(), currentRetro(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}
