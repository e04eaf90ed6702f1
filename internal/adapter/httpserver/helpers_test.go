package httpserver

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/fanout"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	"github.com/pscheid92/streamrelay/internal/relay"
	"github.com/stretchr/testify/require"
)

type stubRelay struct {
	run func(ctx context.Context, body []byte) (relay.Result, error)
}

func (r *stubRelay) Run(ctx context.Context, body []byte) (relay.Result, error) {
	if r.run != nil {
		return r.run(ctx, body)
	}
	return relay.Result{}, errors.New("relay not configured")
}

type failingRegistry struct {
	err error
}

func (r failingRegistry) Register() (*fanout.Subscriber, error) {
	return nil, r.err
}

type testEnv struct {
	cfg         *config.Config
	deps        Dependencies
	clock       *clockwork.FakeClock
	registry    *fanout.Registry
	broadcaster *fanout.Broadcaster
	sweeper     *fanout.Sweeper

	srv  *Server
	http *httptest.Server
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "test",
		Port:               "8080",
		MaxRelayBody:       "1M",
		BroadcastRateLimit: 1000,
		BroadcastRateBurst: 1000,
		RelayRateLimit:     1000,
		RelayRateBurst:     1000,
		CORSAllowedOrigins: []string{"*"},
	}
}

// newTestServer wires a real registry, broadcaster and sweeper behind the
// server. Options run before the server is built.
func newTestServer(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClock()
	registry := fanout.NewRegistry(10, 0, nil)
	policy := fanout.DeliveryPolicy{}
	broadcaster := fanout.NewBroadcaster(registry, clock, policy, nil)

	env := &testEnv{
		cfg:         testConfig(),
		clock:       clock,
		registry:    registry,
		broadcaster: broadcaster,
		sweeper:     fanout.NewSweeper(registry, clock, 10*time.Second, policy, nil),
		deps: Dependencies{
			Registry:  registry,
			Publisher: broadcaster,
			Relay:     &stubRelay{},
			Clock:     clock,
		},
	}

	for _, opt := range opts {
		opt(env)
	}

	env.srv = NewServer(env.cfg, env.deps)
	env.http = httptest.NewServer(env.srv)
	t.Cleanup(env.http.Close)

	return env
}

func withRelay(run func(ctx context.Context, body []byte) (relay.Result, error)) func(*testEnv) {
	return func(e *testEnv) {
		e.deps.Relay = &stubRelay{run: run}
	}
}

func withHealthChecks(checks ...HealthCheck) func(*testEnv) {
	return func(e *testEnv) {
		e.deps.HealthChecks = checks
	}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// sseViewer reads an event stream and yields each event's payload.
type sseViewer struct {
	events <-chan string
	cancel context.CancelFunc
}

func (e *testEnv) connectSSE(t *testing.T, path string) *sseViewer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.http.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 64)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				events <- strings.Join(lines, "\n")
				lines = nil
				continue
			}
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}()

	return &sseViewer{events: events, cancel: cancel}
}

func (v *sseViewer) next(t *testing.T) string {
	t.Helper()
	select {
	case event, ok := <-v.events:
		require.True(t, ok, "stream ended")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

// nextSkippingProbes returns the next event that is not a liveness probe.
func (v *sseViewer) nextSkippingProbes(t *testing.T) string {
	t.Helper()
	for {
		if event := v.next(t); event != "connected" {
			return event
		}
	}
}

func (v *sseViewer) waitClosed(t *testing.T) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-v.events:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}
