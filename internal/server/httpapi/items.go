package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/gin-gonic/gin"
)

func paramID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q: %w", c.Param("id"), common.ErrorNotFound)
	}
	return id, nil
}

// POST /api/retros/:slug/items  body: {"category":"happy","description":"..."}
func (s *Server) createItem(c *gin.Context) {
	var req struct {
		Category    models.Category `json:"category"`
		Description string          `json:"description"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.svc.Items.Create(c.Request.Context(), currentRetro(c), req.Category, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// PATCH /api/retros/:slug/items/:id
func (s *Server) updateItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var upd services.ItemUpdate
	if err := bind(c, &upd); err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.svc.Items.Update(c.Request.Context(), currentRetro(c), id, upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// DELETE /api/retros/:slug/items/:id
func (s *Server) deleteItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.svc.Items.Delete(c.Request.Context(), currentRetro(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/retros/:slug/items/:id/vote
func (s *Server) voteItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.svc.Items.Vote(c.Request.Context(), currentRetro(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// POST /api/retros/:slug/items/:id/highlight
func (s *Server) highlightItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	retro := currentRetro(c)
	if err := s.svc.Items.Highlight(c.Request.Context(), retro, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlighted_item_id": retro.HighlightedItemID})
}

// DELETE /api/retros/:slug/items/:id/highlight
func (s *Server) unhighlightItem(c *gin.Context) {
	if err := s.svc.Items.Unhighlight(c.Request.Context(), currentRetro(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PATCH /api/retros/:slug/items/:id/done
func (s *Server) markItemDone(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.svc.Items.MarkDone(c.Request.Context(), currentRetro(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// POST /api/retros/:slug/action_items  body: {"description":"..."}
func (s *Server) createActionItem(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	a, err := s.svc.ActionItems.Create(c.Request.Context(), currentRetro(c), req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"action_item": a})
}

// PATCH /api/retros/:slug/action_items/:id  body: {"description":"...","done":true}
func (s *Server) updateActionItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var upd services.ActionItemUpdate
	if err := bind(c, &upd); err != nil {
		s.fail(c, err)
		return
	}
	a, err := s.svc.ActionItems.Update(c.Request.Context(), currentRetro(c), id, upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_item": a})
}

// PATCH /api/retros/:slug/action_items/:id/toggle_done
func (s *Server) toggleActionItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	a, err := s.svc.ActionItems.ToggleDone(c.Request.Context(), currentRetro(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_item": a})
}

// DELETE /api/retros/:slug/action_items/:id
func (s *Server) deleteActionItem(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.svc.ActionItems.Delete(c.Request.Context(), currentRetro(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
