package feed

import (
	"context"

	"google.golang.org/grpc"

	"github.com/signalsfoundry/marslink-sim/internal/logging"
)

// subscriberStream overrides the context of a server stream.
type subscriberStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *subscriberStream) Context() context.Context { return s.ctx }

// SubscriberStreamInterceptor gives every stream a subscriber_id and a
// logger annotated with it, stored on the stream context.
func SubscriberStreamInterceptor(base logging.Logger) grpc.StreamServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, log, _ := logging.WithSubscriberLogger(ss.Context(), base.With(
			logging.String("transport", TransportGRPC),
			logging.String("method", info.FullMethod),
		))
		ctx = logging.ContextWithLogger(ctx, log)

		log.Info(ctx, "grpc subscriber connected")
		err := handler(srv, &subscriberStream{ServerStream: ss, ctx: ctx})
		if err != nil {
			log.Info(ctx, "grpc subscriber disconnected", logging.Error(err))
		} else {
			log.Info(ctx, "grpc subscriber closed")
		}
		return err
	}
}
