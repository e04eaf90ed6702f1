package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/streamrelay/internal/domain"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
	"github.com/pscheid92/streamrelay/internal/relay"
)

type chatCompletionResponse struct {
	Status string `json:"status"`
	relay.Result
}

func (s *Server) registerAPIRoutes() {
	s.echo.POST("/api/chatcompletion", s.handleChatCompletion,
		middleware.BodyLimit(s.config.MaxRelayBody),
		newRateLimiter(s.config.RelayRateLimit, s.config.RelayRateBurst),
	)
}

// handleChatCompletion relays the request body upstream and answers once the
// whole response has been published to viewers. The content itself only
// reaches viewers.
func (s *Server) handleChatCompletion(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.ValidationError("failed to read request body")
	}

	result, err := s.relay.Run(c.Request().Context(), body)
	if err != nil {
		return relayError(err, result)
	}

	if err := c.JSON(http.StatusOK, chatCompletionResponse{Status: "ok", Result: result}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func relayError(err error, result relay.Result) error {
	var statusErr *relay.StatusError
	switch {
	case errors.As(err, &statusErr):
		return apperrors.ExternalError("upstream rejected the request", err).
			WithField("upstream_status", statusErr.StatusCode)
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return apperrors.ExternalError("upstream unavailable", err)
	case errors.Is(err, domain.ErrUpstreamInterrupted):
		return apperrors.ExternalError("upstream stream interrupted", err).
			WithField("chunks", result.Chunks)
	default:
		return apperrors.InternalError("relay failed", err)
	}
}
