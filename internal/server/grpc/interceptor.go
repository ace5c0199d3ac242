package grpc

import (
	"context"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *sessionStream) Context() context.Context {
	return w.ctx
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// resolveSession builds the caller's session from the stream metadata. The
// session comes from session_id; a join_token additionally unlocks its
// retro for this stream only.
func (s *GRPCServer) resolveSession(ctx context.Context) (*session.Session, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	sess := session.New("")
	if id := firstValue(md, common.SessionIDMetadataKey); id != "" {
		loaded, err := s.sessions.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		sess = loaded
	}

	if token := firstValue(md, common.JoinTokenMetadataKey); token != "" {
		retro, err := s.sessions.VerifyMagicLink(ctx, token)
		if err != nil {
			return nil, err
		}
		sess.Grant(retro.Slug)
	}
	return sess, nil
}

// sessionInterceptor attaches the caller's session to feed streams.
func (s *GRPCServer) sessionInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {

	if info.FullMethod != watchMethod {
		return handler(srv, ss)
	}

	ctx := ss.Context()
	sess, err := s.resolveSession(ctx)
	if err != nil {
		return toStatus(err)
	}

	return handler(srv, &sessionStream{ServerStream: ss, ctx: session.NewContext(ctx, sess)})
}
