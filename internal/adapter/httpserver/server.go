package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/adapter/websocket"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/fanout"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	"github.com/pscheid92/streamrelay/internal/relay"
)

type subscriberRegistry interface {
	Register() (*fanout.Subscriber, error)
}

type relayer interface {
	Run(ctx context.Context, body []byte) (relay.Result, error)
}

// Dependencies are the components the server routes requests to.
type Dependencies struct {
	Registry       subscriberRegistry
	Publisher      domain.Publisher
	Relay          relayer
	Clock          clockwork.Clock
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	HealthChecks   []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	registry  subscriberRegistry
	publisher domain.Publisher
	relay     relayer
	upgrader  *gorillaws.Upgrader
	viewers   *viewerLimiter

	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	healthChecks   []HealthCheck

	clock     clockwork.Clock
	startTime time.Time

	// streams is cancelled on shutdown so long-lived viewer connections end
	// before the listener waits for them.
	streams       context.Context
	cancelStreams context.CancelFunc
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	streams, cancelStreams := context.WithCancel(context.Background())

	srv := &Server{
		echo:           e,
		config:         cfg,
		registry:       deps.Registry,
		publisher:      deps.Publisher,
		relay:          deps.Relay,
		upgrader:       websocket.NewUpgrader(websocket.NewCheckOrigin(cfg.CORSAllowedOrigins, cfg.AppEnv == "development")),
		viewers:        newViewerLimiter(cfg.MaxViewersPerIP),
		httpMetrics:    deps.HTTPMetrics,
		metricsHandler: deps.MetricsHandler,
		healthChecks:   deps.HealthChecks,
		clock:          clock,
		startTime:      clock.Now(),
		streams:        streams,
		cancelStreams:  cancelStreams,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelStreams()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// streamContext derives a context for a viewer connection that ends with
// either the request or the server.
func (s *Server) streamContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.streams, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
