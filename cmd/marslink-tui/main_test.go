package main

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/internal/feed"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
)

func TestPumpDecodesFramesUntilFeedCloses(t *testing.T) {
	hub := feed.NewHub()
	lis := bufconn.Listen(1 << 20)
	srv := feed.NewGRPCServer(hub, nil, nil)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := feed.NewFrameFeedClient(conn).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for hub.Len() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	frames := make(chan *core.Frame, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- pump(ctx, stream, frames, logging.Noop()) }()

	hub.Publish(&core.Frame{Number: 1})
	hub.Publish(&core.Frame{Number: 2})
	for want := uint64(1); want <= 2; want++ {
		select {
		case f := <-frames:
			if f.Number != want {
				t.Fatalf("frame %d, want %d", f.Number, want)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for frame %d", want)
		}
	}

	hub.Close()
	if err := <-errCh; err != nil {
		t.Fatalf("pump returned %v after feed closed", err)
	}
}
