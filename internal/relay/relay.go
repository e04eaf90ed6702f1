package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/domain"
)

const readBufferSize = 32 * 1024

// Config describes the upstream endpoint.
type Config struct {
	UpstreamURL string
	// ConnectTimeout bounds dialing the upstream host.
	ConnectTimeout time.Duration
	// Timeout bounds a whole relay. Zero disables it.
	Timeout time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Result summarises one completed relay.
type Result struct {
	Chunks  int `json:"chunks"`
	Dropped int `json:"dropped"`
	Bytes   int `json:"bytes"`
}

// StatusError is returned when the upstream answers with a non-2xx status.
// It unwraps to domain.ErrUpstreamRejected.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d", domain.ErrUpstreamRejected, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return domain.ErrUpstreamRejected
}

type Relay struct {
	upstreamURL string
	timeout     time.Duration
	client      *http.Client
	publisher   domain.Publisher
	credentials CredentialSource
	clock       clockwork.Clock
	metrics     *metrics.RelayMetrics
}

func New(cfg Config, publisher domain.Publisher, credentials CredentialSource, clock clockwork.Clock, m *metrics.RelayMetrics) *Relay {
	transport := cfg.Transport
	if transport == nil {
		transport = newTransport(cfg.ConnectTimeout)
	}

	// No client timeout: the body streams for as long as the upstream keeps
	// generating. cfg.Timeout bounds the relay instead.
	return &Relay{
		upstreamURL: cfg.UpstreamURL,
		timeout:     cfg.Timeout,
		client:      &http.Client{Transport: transport},
		publisher:   publisher,
		credentials: credentials,
		clock:       clock,
		metrics:     m,
	}
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = connectTimeout
	return t
}

// Run forwards body to the upstream and publishes every decoded chunk of the
// response in arrival order. It is detached from ctx cancellation so viewers
// keep receiving when the triggering caller goes away; ctx values such as the
// correlation ID are kept.
func (r *Relay) Run(ctx context.Context, body []byte) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.clock.Now()
	result, err := r.run(ctx, body)
	r.metrics.ObserveRelay(relayResult(err), r.clock.Since(start))

	if err != nil {
		slog.WarnContext(ctx, "Relay failed", "error", err, "chunks", result.Chunks, "dropped", result.Dropped)
		return result, err
	}

	slog.InfoContext(ctx, "Relay completed", "chunks", result.Chunks, "dropped", result.Dropped, "bytes", result.Bytes)
	return result, nil
}

func (r *Relay) run(ctx context.Context, body []byte) (Result, error) {
	var result Result

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.upstreamURL, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if key, ok := r.credentials.Credential(); ok {
		req.Header.Set("Authorization", "Bearer "+key)
	} else {
		r.metrics.RecordMissingCredential()
		slog.WarnContext(ctx, "Relaying without credential", "error", domain.ErrMissingCredential)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{StatusCode: resp.StatusCode}
	}

	slog.DebugContext(ctx, "Upstream stream opened", "status", resp.StatusCode)

	var dec chunkDecoder
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			result.Bytes += n
			r.handleChunk(ctx, &dec, buf[:n], &result)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return result, fmt.Errorf("%w: %w", domain.ErrUpstreamInterrupted, readErr)
		}
	}

	if err := dec.flush(); err != nil {
		result.Dropped++
		r.metrics.RecordChunk("dropped", 0)
		slog.WarnContext(ctx, "Dropping undecodable chunk", "error", err)
	}

	return result, nil
}

func (r *Relay) handleChunk(ctx context.Context, dec *chunkDecoder, chunk []byte, result *Result) {
	text, err := dec.decode(chunk)
	if err != nil {
		result.Dropped++
		r.metrics.RecordChunk("dropped", len(chunk))
		slog.WarnContext(ctx, "Dropping undecodable chunk", "error", err)
		return
	}
	if text == "" {
		return
	}

	if err := r.publisher.Publish(ctx, domain.Message(text)); err != nil {
		result.Dropped++
		r.metrics.RecordChunk("publish_failed", len(chunk))
		slog.WarnContext(ctx, "Failed to publish chunk", "error", err)
		return
	}

	result.Chunks++
	r.metrics.RecordChunk("published", len(chunk))
}

func relayResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrUpstreamRejected):
		return "rejected"
	case errors.Is(err, domain.ErrUpstreamInterrupted):
		return "interrupted"
	default:
		return "error"
	}
}
