package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/marslink-sim/internal/feed/protocol"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
)

const tracerName = "github.com/signalsfoundry/marslink-sim/internal/feed"

// Connection timing defaults.
const (
	DefaultPingInterval = 25 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	maxClientMessage    = 1 << 20
)

// WebSocketHandler streams frames from a Hub to browser clients as JSON
// envelopes. The first message is always a welcome.
type WebSocketHandler struct {
	hub      *Hub
	log      logging.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewWebSocketHandler constructs a handler bound to hub.
func NewWebSocketHandler(hub *Hub, log logging.Logger) *WebSocketHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &WebSocketHandler{
		hub:    hub,
		log:    log,
		tracer: otel.Tracer(tracerName),
		upgrader: websocket.Upgrader{
			// Renderers are served from arbitrary local origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		PingInterval: DefaultPingInterval,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// ServeHTTP upgrades the connection and streams until the client goes away
// or the hub is closed.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx, log, subscriberID := logging.WithSubscriberLogger(r.Context(), h.log.With(logging.String("transport", TransportWebSocket)))
	ctx, span := h.tracer.Start(ctx, "feed.ws.Stream", trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("subscriber_id", subscriberID)))
	defer span.End()

	sub := h.hub.Subscribe(TransportWebSocket)
	defer sub.Close()
	log.Info(ctx, "websocket subscriber connected", logging.String("remote", r.RemoteAddr))

	sent, err := h.stream(ctx, conn, sub, subscriberID)
	span.SetAttributes(attribute.Int64("frames_sent", int64(sent)))
	if err != nil {
		span.RecordError(err)
		log.Info(ctx, "websocket subscriber disconnected", logging.Error(err), logging.Int("frames_sent", sent))
		return
	}
	log.Info(ctx, "websocket subscriber closed", logging.Int("frames_sent", sent))
}

func (h *WebSocketHandler) stream(ctx context.Context, conn *websocket.Conn, sub *Subscription, subscriberID string) (int, error) {
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	})

	// Client messages are not interpreted; the read loop only services
	// control frames and detects disconnects.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	welcome, err := protocol.Encode(protocol.MsgWelcome, protocol.NewWelcome(subscriberID, h.hub.Latest()))
	if err != nil {
		return 0, err
	}
	if err := h.write(conn, websocket.TextMessage, welcome); err != nil {
		return 0, err
	}

	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			h.closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			return sent, nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return sent, nil
			}
			return sent, err
		case <-ping.C:
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				return sent, err
			}
		case f, ok := <-sub.C:
			if !ok {
				h.closeConn(conn, websocket.CloseNormalClosure, "feed closed")
				return sent, nil
			}
			msg, err := protocol.EncodeFrame(f)
			if err != nil {
				h.log.Warn(ctx, "dropping unencodable frame", logging.Any("frame", f.Number), logging.Error(err))
				continue
			}
			if err := h.write(conn, websocket.TextMessage, msg); err != nil {
				return sent, err
			}
			sent++
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, messageType int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
	return conn.WriteMessage(messageType, data)
}

func (h *WebSocketHandler) closeConn(conn *websocket.Conn, code int, text string) {
	_ = h.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
