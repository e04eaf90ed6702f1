package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

// bridgeChannelSize bounds how many received messages may wait for local
// fan-out before go-redis starts dropping.
const bridgeChannelSize = 1000

// defaultSubscribeRetry covers Redis coming up a little after this replica.
var defaultSubscribeRetry = retry.Policy{
	MaxAttempts:    6,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     8 * time.Second,
}

var errNotSubscribed = errors.New("bridge is not subscribed")

// envelope is the wire format on the shared channel. Origin lets a replica
// skip messages it already delivered itself.
type envelope struct {
	Origin  string `json:"origin"`
	Payload string `json:"payload"`
}

// Bridge shares messages with other replicas over a Redis channel. Publish
// always fans out to this replica's viewers first, synchronously, and then
// hands the message to Redis for everyone else; Run delivers what other
// replicas published.
type Bridge struct {
	client     *goredis.Client
	channel    string
	local      domain.Publisher
	metrics    *metrics.RedisMetrics
	instanceID string

	ready      chan struct{}
	subscribed atomic.Bool

	clock          clockwork.Clock
	subscribeRetry retry.Policy
}

var _ domain.Publisher = (*Bridge)(nil)

func NewBridge(client *goredis.Client, channel string, local domain.Publisher, clock clockwork.Clock, m *metrics.RedisMetrics) *Bridge {
	return &Bridge{
		client:         client,
		channel:        channel,
		local:          local,
		metrics:        m,
		instanceID:     uuid.NewString(),
		ready:          make(chan struct{}),
		clock:          clock,
		subscribeRetry: defaultSubscribeRetry,
	}
}

// Publish implements domain.Publisher. Local viewers get the message whatever
// state Redis is in; a failed hand-off to Redis only affects other replicas
// and is logged, not returned.
func (b *Bridge) Publish(ctx context.Context, msg domain.Message) error {
	err := b.local.Publish(ctx, msg)

	data, encErr := json.Marshal(envelope{Origin: b.instanceID, Payload: string(msg)})
	if encErr != nil {
		return errors.Join(err, fmt.Errorf("failed to encode bridged message: %w", encErr))
	}
	if pubErr := b.client.Publish(ctx, b.channel, data).Err(); pubErr != nil {
		b.metrics.RecordBridgePublishFailure()
		slog.WarnContext(ctx, "Redis publish failed, other replicas miss this message", "channel", b.channel, "error", pubErr)
	}

	return err
}

// Ready is closed once Run has confirmed its subscription.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Check reports whether the bridge is subscribed and Redis answers.
func (b *Bridge) Check(ctx context.Context) error {
	if !b.subscribed.Load() {
		return errNotSubscribed
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Run subscribes to the channel and hands every message other replicas
// published, in order, to the local publisher. It blocks until ctx is
// cancelled or the subscription ends.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := retry.Do(ctx, b.clock, b.subscribePolicy(), classifySubscribe, b.subscribe)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	defer func() { _ = sub.Close() }()

	b.subscribed.Store(true)
	defer b.subscribed.Store(false)
	close(b.ready)
	slog.Info("Redis bridge subscribed", "channel", b.channel, "instance_id", b.instanceID)

	messages := sub.Channel(goredis.WithChannelSize(bridgeChannelSize))
	for {
		select {
		case <-ctx.Done():
			slog.Info("Redis bridge stopped", "channel", b.channel)
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			b.deliver(ctx, msg.Payload)
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		slog.WarnContext(ctx, "Dropping malformed bridged message", "channel", b.channel, "error", err)
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	if err := b.local.Publish(ctx, domain.Message(env.Payload)); err != nil {
		slog.WarnContext(ctx, "Local fan-out of bridged message failed", "error", err)
	}
}

func (b *Bridge) subscribe(ctx context.Context) (*goredis.PubSub, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}

func (b *Bridge) subscribePolicy() retry.Policy {
	p := b.subscribeRetry
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis subscribe failed, retrying", "channel", b.channel, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func classifySubscribe(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}
