package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/httpserver"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/adapter/redis"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/fanout"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	"github.com/pscheid92/streamrelay/internal/platform/logging"
	"github.com/pscheid92/streamrelay/internal/relay"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func runGracefulShutdown(srv *httpserver.Server, stopBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopBackground()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(connectCtx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupBridge shares broadcasts with other replicas through Redis. The bridge
// becomes the publisher: it fans out locally first, then forwards to Redis.
func setupBridge(ctx context.Context, client *goredis.Client, cfg *config.Config, local domain.Publisher, clock clockwork.Clock, m *metrics.RedisMetrics) (*redis.Bridge, []httpserver.HealthCheck) {
	bridge := redis.NewBridge(client, cfg.RedisChannel, local, clock, m)

	go func() {
		if err := bridge.Run(ctx); err != nil {
			slog.Error("Redis bridge stopped, broadcasts stay local to this replica", "error", err)
		}
	}()

	checks := []httpserver.HealthCheck{
		{Name: "redis_bridge", Check: bridge.Check},
	}
	return bridge, checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	fanoutMetrics := metrics.NewFanoutMetrics(reg)
	relayMetrics := metrics.NewRelayMetrics(reg)

	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	policy := fanout.DeliveryPolicy{SendTimeout: cfg.SendTimeout, Concurrency: cfg.FanoutConcurrency}
	registry := fanout.NewRegistry(cfg.SubscriberQueueSize, cfg.MaxSubscribers, fanoutMetrics)
	broadcaster := fanout.NewBroadcaster(registry, clock, policy, fanoutMetrics)
	sweeper := fanout.NewSweeper(registry, clock, cfg.SweepInterval, policy, fanoutMetrics)
	go sweeper.Run(background)

	var (
		publisher    domain.Publisher = broadcaster
		healthChecks []httpserver.HealthCheck
	)
	if cfg.RedisURL != "" {
		redisMetrics := metrics.NewRedisMetrics(reg)
		redisClient := setupRedis(background, cfg, redisMetrics)
		defer func() { _ = redisClient.Close() }()

		publisher, healthChecks = setupBridge(background, redisClient, cfg, broadcaster, clock, redisMetrics)
		slog.Info("Sharing broadcasts through Redis", "channel", cfg.RedisChannel)
	}

	relayCfg := relay.Config{
		UpstreamURL:    cfg.UpstreamURL,
		ConnectTimeout: cfg.UpstreamConnectTimeout,
		Timeout:        cfg.RelayTimeout,
	}
	upstream := relay.New(relayCfg, publisher, relay.EnvCredentials{Var: cfg.APIKeyEnv}, clock, relayMetrics)

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		Registry:       registry,
		Publisher:      publisher,
		Relay:          upstream,
		Clock:          clock,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metrics.Handler(reg),
		HealthChecks:   healthChecks,
	})

	done := runGracefulShutdown(srv, stopBackground)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
