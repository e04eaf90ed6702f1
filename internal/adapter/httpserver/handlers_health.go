package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second

	checkPassed = "ok"
)

// HealthCheck is a named dependency check run by the startup and readiness
// probes.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// healthReport lists every check's outcome so a failing probe names all
// broken dependencies at once.
type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type livenessReport struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.respondWithChecks(c, startupProbeTimeout)
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.respondWithChecks(c, readinessProbeTimeout)
}

// handleLiveness never consults dependencies: a replica without Redis still
// serves its own viewers.
func (s *Server) handleLiveness(c echo.Context) error {
	report := livenessReport{
		Status:  "ok",
		Uptime:  s.clock.Since(s.startTime).Seconds(),
		Version: version.Version,
	}
	if err := c.JSON(http.StatusOK, report); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) respondWithChecks(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	report := s.runHealthChecks(ctx)
	status := http.StatusOK
	if report.Status != "ready" {
		status = http.StatusServiceUnavailable
	}

	if err := c.JSON(status, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) runHealthChecks(ctx context.Context) healthReport {
	report := healthReport{Status: "ready", Checks: make(map[string]string, len(s.healthChecks))}
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			report.Status = "unhealthy"
			report.Checks[hc.Name] = err.Error()
			continue
		}
		report.Checks[hc.Name] = checkPassed
	}
	return report
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
