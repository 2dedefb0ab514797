package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/gdamore/tcell/v2"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/internal/feed"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"github.com/signalsfoundry/marslink-sim/internal/tui"
)

func main() {
	endpoint := flag.String("endpoint", "localhost:50051", "gRPC frame feed endpoint (host:port)")
	flag.Parse()

	// The terminal is the UI; logs go to stderr and only at warn or above.
	log := logging.New(logging.Config{Level: "warn", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *endpoint, log); err != nil {
		fmt.Fprintf(os.Stderr, "marslink-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, endpoint string, log logging.Logger) error {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := feed.NewFrameFeedClient(conn).Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	frames := make(chan *core.Frame, feed.DefaultBuffer)
	recvErr := make(chan error, 1)
	go func() {
		defer close(frames)
		recvErr <- pump(ctx, stream, frames, log)
	}()

	if err := tui.NewView(screen).Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cancel()
	if err := <-recvErr; err != nil {
		return err
	}
	return nil
}

// pump decodes stream messages into frames. The view skips stale queued
// frames, so a blocking send is enough here.
func pump(ctx context.Context, stream grpc.ServerStreamingClient[structpb.Struct], frames chan<- *core.Frame, log logging.Logger) error {
	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		f, err := feed.FrameFromStruct(msg)
		if err != nil {
			log.Warn(ctx, "skipping undecodable frame", logging.Error(err))
			continue
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return nil
		}
	}
}
