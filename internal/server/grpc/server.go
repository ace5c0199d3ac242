package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"google.golang.org/grpc"
)

type RetroFinder interface {
	Get(ctx context.Context, slug string) (*models.Retro, error)
}

// SessionGate resolves feed callers to sessions and checks their access.
type SessionGate interface {
	Load(ctx context.Context, sessionID string) (*session.Session, error)
	Authorize(ctx context.Context, retro *models.Retro) error
	VerifyMagicLink(ctx context.Context, token string) (*models.Retro, error)
}

type Subscriber interface {
	Subscribe(topic string) *broadcast.Subscription
}

const shutdownTimeout = 10 * time.Second

type GRPCServer struct {
	address  string
	retros   RetroFinder
	sessions SessionGate
	events   Subscriber
	logger   logging.Logger

	// closed on shutdown so open feeds end and GracefulStop can finish
	shutdown     chan struct{}
	shutdownOnce sync.Once
	stopTimeout  time.Duration
}

func NewGRPCServer(a string, l logging.Logger, retros RetroFinder, sessions SessionGate, events Subscriber) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		retros:   retros,
		sessions: sessions,
		events:   events,

		shutdown:    make(chan struct{}),
		stopTimeout: shutdownTimeout,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.sessionInterceptor))
	srv.RegisterService(&retroFeedServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts feed connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.stop(srv)
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

// stop ends open feeds and drains the server, forcing it closed when the
// drain takes longer than stopTimeout.
func (s *GRPCServer) stop(srv *grpc.Server) {
	s.shutdownOnce.Do(func() { close(s.shutdown) })

	drained := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.stopTimeout):
		s.logger.Warn(context.Background(), "gRPC graceful stop timed out, forcing")
		srv.Stop()
	}
}
