package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var errShuttingDown = status.Error(codes.Unavailable, "server shutting down")

func (s *GRPCServer) Watch(req *wrapperspb.StringValue, stream RetroFeed_WatchServer) error {
	ctx := stream.Context()

	retro, err := s.retros.Get(ctx, req.GetValue())
	if err != nil {
		return toStatus(err)
	}
	if err := s.sessions.Authorize(ctx, retro); err != nil {
		return toStatus(err)
	}

	sub := s.events.Subscribe(broadcast.Topic(retro.ID))
	defer sub.Close()

	s.logger.Info(ctx, "Feed subscribed", "retro", retro.Slug)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return errShuttingDown
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			env, err := broadcast.Decode(payload)
			if err != nil {
				s.logger.Warn(ctx, "drop malformed event", "err", err)
				continue
			}
			if env.ChangesAccess() {
				current, err := s.recheck(ctx, retro, env)
				if err != nil {
					s.logger.Info(ctx, "closing feed", "retro", retro.Slug, "err", err)
					if ev, perr := toStruct(broadcast.ForceRelogin(retro.ID)); perr == nil {
						_ = stream.Send(ev)
					}
					return toStatus(err)
				}
				retro = current
			}
			ev, err := toStruct(payload)
			if err != nil {
				s.logger.Warn(ctx, "drop malformed event", "err", err)
				continue
			}
			if err := stream.Send(ev); err != nil {
				return err
			}
			if env.Type == broadcast.EventRetroDeleted {
				return nil
			}
		}
	}
}

// recheck authorizes the caller again after an event that may have taken
// its access away, and returns the retro as it is now. The session whose
// change forced the relogin keeps its stream.
func (s *GRPCServer) recheck(ctx context.Context, retro *models.Retro, env broadcast.Envelope) (*models.Retro, error) {
	var id string
	if sess := session.FromContext(ctx); sess != nil {
		id = sess.ID
	}
	if origin := env.Originator(); origin != "" && origin == id {
		return retro, nil
	}

	slug := retro.Slug
	if next := env.Slug(); next != "" {
		slug = next
	}
	current, err := s.retros.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	fresh, err := s.resolveSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Authorize(session.NewContext(ctx, fresh), current); err != nil {
		return nil, err
	}
	return current, nil
}

func toStruct(payload []byte) (*structpb.Struct, error) {
	ev := &structpb.Struct{}
	if err := protojson.Unmarshal(payload, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "retro not found")
	case errors.Is(err, common.ErrorAuthRequired), errors.Is(err, common.ErrorAuthFailed):
		return status.Error(codes.Unauthenticated, common.Reason(err))
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, common.Reason(err))
	case errors.Is(err, common.ErrorUpstream):
		return status.Error(codes.Unavailable, common.Reason(err))
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
