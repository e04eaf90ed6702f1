package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"go-simpler.org/env"
)

const (
	minSweepInterval = 100 * time.Millisecond
	maxSweepInterval = time.Hour
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// APIKeyEnv names the variable holding the upstream credential. It is
	// looked up on every relay so a rotated key needs no restart.
	APIKeyEnv              string        `env:"API_KEY_ENV" default:"OPENAI_API_KEY"`
	UpstreamURL            string        `env:"UPSTREAM_URL" default:"https://api.openai.com/v1/chat/completions"`
	UpstreamConnectTimeout time.Duration `env:"UPSTREAM_CONNECT_TIMEOUT" default:"10s"`
	RelayTimeout           time.Duration `env:"RELAY_TIMEOUT" default:"0s"`
	MaxRelayBody           string        `env:"MAX_RELAY_BODY" default:"1M"`

	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" default:"10s"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT" default:"5s"`
	SubscriberQueueSize int           `env:"SUBSCRIBER_QUEUE_SIZE" default:"10"`
	MaxSubscribers      int           `env:"MAX_SUBSCRIBERS" default:"10000"`
	MaxViewersPerIP     int           `env:"MAX_VIEWERS_PER_IP" default:"50"`
	FanoutConcurrency   int           `env:"FANOUT_CONCURRENCY" default:"0"`

	BroadcastRateLimit float64 `env:"BROADCAST_RATE_LIMIT" default:"10"`
	BroadcastRateBurst int     `env:"BROADCAST_RATE_BURST" default:"20"`
	RelayRateLimit     float64 `env:"RELAY_RATE_LIMIT" default:"1"`
	RelayRateBurst     int     `env:"RELAY_RATE_BURST" default:"5"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" default:"streamrelay:messages"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	if cfg.APIKeyEnv == "" {
		return errors.New("API_KEY_ENV must not be empty")
	}

	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL must be an absolute http(s) URL, got %q", cfg.UpstreamURL)
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return errors.New("UPSTREAM_CONNECT_TIMEOUT must be positive")
	}
	if cfg.RelayTimeout < 0 {
		return errors.New("RELAY_TIMEOUT must not be negative")
	}
	if _, err := bytes.Parse(cfg.MaxRelayBody); err != nil {
		return fmt.Errorf("MAX_RELAY_BODY must be a size like 512K or 1M, got %q", cfg.MaxRelayBody)
	}

	if cfg.SweepInterval < minSweepInterval || cfg.SweepInterval > maxSweepInterval {
		return fmt.Errorf("SWEEP_INTERVAL must be between %s and %s, got %s", minSweepInterval, maxSweepInterval, cfg.SweepInterval)
	}
	if cfg.SendTimeout < 0 {
		return errors.New("SEND_TIMEOUT must not be negative")
	}
	if cfg.SubscriberQueueSize < 1 {
		return errors.New("SUBSCRIBER_QUEUE_SIZE must be at least 1")
	}
	if cfg.MaxSubscribers < 0 {
		return errors.New("MAX_SUBSCRIBERS must not be negative")
	}
	if cfg.MaxViewersPerIP < 0 {
		return errors.New("MAX_VIEWERS_PER_IP must not be negative")
	}
	if cfg.FanoutConcurrency < 0 {
		return errors.New("FANOUT_CONCURRENCY must not be negative")
	}

	if cfg.BroadcastRateLimit <= 0 || cfg.RelayRateLimit <= 0 {
		return errors.New("rate limits must be positive")
	}
	if cfg.BroadcastRateBurst < 1 || cfg.RelayRateBurst < 1 {
		return errors.New("rate bursts must be at least 1")
	}

	if len(cfg.CORSAllowedOrigins) == 0 {
		return errors.New("CORS_ALLOWED_ORIGINS must list at least one origin")
	}

	if cfg.RedisURL != "" && cfg.RedisChannel == "" {
		return errors.New("REDIS_CHANNEL is required when REDIS_URL is set")
	}

	return nil
}
