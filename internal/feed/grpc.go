package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"github.com/signalsfoundry/marslink-sim/internal/observability"
)

// gRPC names of the frame feed.
const (
	FrameFeedServiceName     = "marslink.feed.v1.FrameFeed"
	FrameFeedSubscribeMethod = "/" + FrameFeedServiceName + "/Subscribe"
)

// FrameFeedServer is the server API of marslink.feed.v1.FrameFeed.
type FrameFeedServer interface {
	// Subscribe streams one Struct per simulation frame until the client
	// cancels or the feed closes.
	Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

func frameFeedSubscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(FrameFeedServer).Subscribe(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// FrameFeedServiceDesc describes the service for grpc.Server.RegisterService.
var FrameFeedServiceDesc = grpc.ServiceDesc{
	ServiceName: FrameFeedServiceName,
	HandlerType: (*FrameFeedServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       frameFeedSubscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "marslink/feed/v1/feed.proto",
}

// RegisterFrameFeedServer registers srv on s.
func RegisterFrameFeedServer(s grpc.ServiceRegistrar, srv FrameFeedServer) {
	s.RegisterService(&FrameFeedServiceDesc, srv)
}

// FrameFeedClient is the client API of marslink.feed.v1.FrameFeed.
type FrameFeedClient struct {
	cc grpc.ClientConnInterface
}

// NewFrameFeedClient wraps a client connection.
func NewFrameFeedClient(cc grpc.ClientConnInterface) *FrameFeedClient {
	return &FrameFeedClient{cc: cc}
}

// Subscribe opens a frame stream.
func (c *FrameFeedClient) Subscribe(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &FrameFeedServiceDesc.Streams[0], FrameFeedSubscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// FrameFeedService serves hub frames over gRPC.
type FrameFeedService struct {
	hub *Hub
	log logging.Logger
}

// NewFrameFeedService constructs the service.
func NewFrameFeedService(hub *Hub, log logging.Logger) *FrameFeedService {
	if log == nil {
		log = logging.Noop()
	}
	return &FrameFeedService{hub: hub, log: log}
}

// Subscribe implements FrameFeedServer.
func (s *FrameFeedService) Subscribe(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = s.log
	}

	sub := s.hub.Subscribe(TransportGRPC)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case f, ok := <-sub.C:
			if !ok {
				return nil
			}
			msg, err := FrameStruct(f)
			if err != nil {
				log.Warn(ctx, "dropping unencodable frame", logging.Any("frame", f.Number), logging.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// NewGRPCServer builds a gRPC server exposing the frame feed, instrumented
// with OpenTelemetry and the Prometheus stream interceptor.
func NewGRPCServer(hub *Hub, collector *observability.FeedCollector, log logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainStreamInterceptor(
			SubscriberStreamInterceptor(log),
			collector.StreamServerInterceptor(),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	RegisterFrameFeedServer(srv, NewFrameFeedService(hub, log))
	return srv
}

// FrameStruct converts a frame into its JSON-shaped Struct form.
func FrameStruct(f *core.Frame) (*structpb.Struct, error) {
	if f == nil {
		return nil, status.Error(codes.Internal, "nil frame")
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("frame to struct: %w", err)
	}
	return st, nil
}

// FrameFromStruct is the inverse of FrameStruct.
func FrameFromStruct(st *structpb.Struct) (*core.Frame, error) {
	raw, err := protojson.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("struct to json: %w", err)
	}
	var f core.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}
