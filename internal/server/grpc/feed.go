package grpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The feed service is declared by hand on top of the well-known wrapper
// types, so no generated code is needed:
//
//	service RetroFeed {
//	  rpc Watch(google.protobuf.StringValue) returns (stream google.protobuf.Struct);
//	}
const (
	serviceName = "postfacto.v1.RetroFeed"
	watchMethod = "/" + serviceName + "/Watch"
)

// RetroFeedServer streams the events of one retro, addressed by slug.
type RetroFeedServer interface {
	Watch(*wrapperspb.StringValue, RetroFeed_WatchServer) error
}

type RetroFeed_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

var retroFeedServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RetroFeedServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "postfacto/v1/feed.proto",
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RetroFeedServer).Watch(m, &retroFeedWatchServer{stream})
}

type retroFeedWatchServer struct {
	grpc.ServerStream
}

func (x *retroFeedWatchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// Watch subscribes to the feed of slug and calls fn with every event until
// the server ends the stream, ctx is cancelled or fn returns an error.
func Watch(ctx context.Context, conn grpc.ClientConnInterface, slug string, fn func(*structpb.Struct) error) error {
	stream, err := conn.NewStream(ctx, &retroFeedServiceDesc.Streams[0], watchMethod)
	if err != nil {
		return err
	}
	// io.EOF means the server already ended the stream; RecvMsg reports why.
	if err := stream.SendMsg(wrapperspb.String(slug)); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		ev := new(structpb.Struct)
		if err := stream.RecvMsg(ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
