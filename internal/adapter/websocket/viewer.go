// Package websocket serves viewers over a WebSocket connection, one text
// frame per message.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/domain"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Subscription is the viewer side of a registered subscriber.
type Subscription interface {
	Messages() <-chan domain.Message
	Done() <-chan struct{}
	Close()
}

// NewUpgrader returns an upgrader for viewer connections.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

type viewerWriter struct {
	conn *websocket.Conn
}

// Serve writes every message of sub to conn until the viewer disconnects,
// sub is closed, ctx is cancelled or a write fails. Both the connection and
// the subscription are closed on return.
func Serve(ctx context.Context, conn *websocket.Conn, sub Subscription, clock clockwork.Clock) error {
	defer sub.Close()
	defer conn.Close()

	w := &viewerWriter{conn: conn}
	w.configurePongHandler()

	gone := make(chan struct{})
	go w.readUntilClosed(gone)

	ticker := clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			slog.DebugContext(ctx, "WebSocket viewer disconnected")
			return nil
		case <-ctx.Done():
			w.closeGraceful(websocket.CloseGoingAway, "server shutting down")
			return nil
		case <-sub.Done():
			w.closeGraceful(websocket.CloseGoingAway, "subscription closed")
			return nil
		case msg := <-sub.Messages():
			w.updateWriteDeadline()
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}
		case <-ticker.Chan():
			w.updateWriteDeadline()
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.DebugContext(ctx, "WebSocket ping failed", "error", err)
				return nil
			}
		}
	}
}

// readUntilClosed discards inbound frames so control frames (pong, close)
// are processed, and closes gone once the connection fails.
func (w *viewerWriter) readUntilClosed(gone chan<- struct{}) {
	defer close(gone)
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *viewerWriter) closeGraceful(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
}

func (w *viewerWriter) configurePongHandler() {
	w.updateReadDeadline()
	w.conn.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		return nil
	})
}

// Socket deadlines are wall-clock; the injected clock only drives pings.
func (w *viewerWriter) updateWriteDeadline() {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (w *viewerWriter) updateReadDeadline() {
	_ = w.conn.SetReadDeadline(time.Now().Add(pongDeadline))
}
