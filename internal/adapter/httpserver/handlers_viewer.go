package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/adapter/sse"
	"github.com/pscheid92/streamrelay/internal/adapter/websocket"
	"github.com/pscheid92/streamrelay/internal/domain"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
)

func (s *Server) registerViewerRoutes() {
	perIP := s.viewers.middleware()
	s.echo.GET("/events", s.handleEvents, perIP)
	s.echo.GET("/events/", s.handleEvents, perIP)
	s.echo.GET("/events/:message", s.handleBroadcast, newRateLimiter(s.config.BroadcastRateLimit, s.config.BroadcastRateBurst))
	s.echo.GET("/ws", s.handleWebSocket, perIP)
}

func (s *Server) handleEvents(c echo.Context) error {
	sub, err := s.registry.Register()
	if err != nil {
		return registrationError(err)
	}

	ctx, cancel := s.streamContext(c.Request().Context())
	defer cancel()

	slog.DebugContext(ctx, "SSE viewer connected", "subscriber_id", sub.ID().String())

	if err := sse.Serve(ctx, c.Response(), sub); err != nil {
		if errors.Is(err, sse.ErrStreamingUnsupported) {
			return apperrors.InternalError("streaming not supported", err)
		}
		slog.DebugContext(ctx, "SSE viewer stream ended", "subscriber_id", sub.ID().String(), "error", err)
	}
	return nil
}

func (s *Server) handleWebSocket(c echo.Context) error {
	sub, err := s.registry.Register()
	if err != nil {
		return registrationError(err)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		sub.Close()
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	ctx, cancel := s.streamContext(c.Request().Context())
	defer cancel()

	slog.DebugContext(ctx, "WebSocket viewer connected", "subscriber_id", sub.ID().String())

	if err := websocket.Serve(ctx, conn, sub, s.clock); err != nil {
		slog.DebugContext(ctx, "WebSocket viewer stream ended", "subscriber_id", sub.ID().String(), "error", err)
	}
	return nil
}

// handleBroadcast publishes the path segment after /events/ to every viewer.
func (s *Server) handleBroadcast(c echo.Context) error {
	msg := c.Param("message")
	// Segments with escapes the router kept raw (e.g. %2F) still need decoding.
	if c.Request().URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(msg); err == nil {
			msg = unescaped
		}
	}

	ctx := c.Request().Context()
	if err := s.publisher.Publish(ctx, domain.Message(msg)); err != nil {
		return apperrors.InternalError("failed to publish message", err)
	}

	slog.InfoContext(ctx, "Broadcast message sent", "bytes", len(msg))
	return c.String(http.StatusOK, "msg sent")
}

func registrationError(err error) error {
	if errors.Is(err, domain.ErrConnectionSetup) {
		return apperrors.UnavailableError("viewer could not be registered", err)
	}
	return apperrors.InternalError("viewer registration failed", err)
}
