// Package sse drains a subscriber queue into an HTTP event-stream response.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pscheid92/streamrelay/internal/domain"
)

// Subscription is the viewer side of a registered subscriber.
type Subscription interface {
	Messages() <-chan domain.Message
	Done() <-chan struct{}
	Close()
}

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// WriteEvent writes msg as one event. Every payload line becomes its own
// data field so multi-line payloads survive the framing. The empty
// keepalive message is written as a single empty data field.
func WriteEvent(w io.Writer, msg domain.Message) error {
	var b strings.Builder
	for _, line := range strings.Split(lineBreaks.Replace(string(msg)), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// Serve streams sub to w until ctx is cancelled, sub is closed, or a write
// fails. The subscriber is always closed on return so the next sweep drops it.
func Serve(ctx context.Context, w http.ResponseWriter, sub Subscription) error {
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			slog.DebugContext(ctx, "Viewer disconnected")
			return nil
		case <-sub.Done():
			slog.DebugContext(ctx, "Viewer stream closed by sweep")
			return nil
		case msg := <-sub.Messages():
			if err := WriteEvent(w, msg); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
			flusher.Flush()
		}
	}
}
