package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"github.com/gin-gonic/gin"
)

// GET /api/retros/:slug/events
//
// Streams the retro's events as server-sent events until the client goes
// away, the retro is deleted or the session loses access to it. A comment
// line is written every heartbeat to keep proxies from closing an idle
// stream.
func (s *Server) streamEvents(c *gin.Context) {
	retro := currentRetro(c)
	sub := s.events.Subscribe(broadcast.Topic(retro.ID))
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprint(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case payload, ok := <-sub.C():
			if !ok {
				return false
			}
			ev, err := broadcast.Decode(payload)
			if err != nil {
				s.logger.Warn(ctx, "drop malformed event", "err", err)
				return true
			}
			if ev.ChangesAccess() {
				current, err := s.recheck(ctx, retro, ev)
				if err != nil {
					s.logger.Info(ctx, "closing event stream", "retro", retro.Slug, "err", err)
					c.SSEvent(broadcast.EventForceRelogin, json.RawMessage(broadcast.ForceRelogin(retro.ID)))
					return false
				}
				retro = current
			}
			c.SSEvent(ev.Type, json.RawMessage(payload))
			return ev.Type != broadcast.EventRetroDeleted
		}
	})
}

// recheck authorizes the stream's session again after an event that may
// have taken its access away, and returns the retro as it is now. The
// session whose change forced the relogin keeps its stream.
func (s *Server) recheck(ctx context.Context, retro *models.Retro, ev broadcast.Envelope) (*models.Retro, error) {
	var id string
	if sess := session.FromContext(ctx); sess != nil {
		id = sess.ID
	}
	if origin := ev.Originator(); origin != "" && origin == id {
		return retro, nil
	}

	slug := retro.Slug
	if next := ev.Slug(); next != "" {
		slug = next
	}
	current, err := s.svc.Retros.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	fresh, err := s.svc.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Sessions.Authorize(session.NewContext(ctx, fresh), current); err != nil {
		return nil, err
	}
	return current, nil
}
