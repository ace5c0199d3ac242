package services

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
)

// Notifier pushes committed changes to the viewers of a retro. It never
// fails the caller: publish problems are only logged.
type Notifier struct {
	pub    broadcast.Publisher
	logger logging.Logger
}

func NewNotifier(pub broadcast.Publisher, logger logging.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, retroID int64, eventType string, payload any) {
	if n == nil || n.pub == nil {
		return
	}
	data, err := json.Marshal(broadcast.Event{Type: eventType, RetroID: retroID, Payload: payload})
	if err != nil {
		n.logger.Error(ctx, "marshal event", "type", eventType, "retro_id", retroID, "err", err)
		return
	}
	n.pub.Publish(ctx, broadcast.Topic(retroID), data)
}
