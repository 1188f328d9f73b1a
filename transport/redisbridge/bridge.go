// Package redisbridge relays notifications between server instances over a
// Redis pub/sub channel.
//
// Every event published locally is also published to the channel, tagged
// with the instance's origin id. Run subscribes to the channel and hands
// events from other instances to the local publisher (the WebSocket hub),
// so two players connected to different instances still see each other's
// moves.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wricardo/mcp-training/gridduel/game/notify"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "gridduel:events"

const (
	targetUser    = "user"
	targetSession = "session"
)

// envelope is the message written to the channel.
type envelope struct {
	Origin string          `json:"origin"`
	Target string          `json:"target"`
	Key    string          `json:"key"`
	Event  json.RawMessage `json:"event"`
}

// Bridge publishes events to Redis and relays remote ones locally.
type Bridge struct {
	client  *redis.Client
	channel string
	origin  string
	local   notify.Publisher
	logger  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithChannel(channel string) Option {
	return func(b *Bridge) { b.channel = channel }
}

// WithOrigin overrides the random instance id.
func WithOrigin(origin string) Option {
	return func(b *Bridge) { b.origin = origin }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New creates a bridge delivering remote events to local.
func New(client *redis.Client, local notify.Publisher, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  slog.Default(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin returns the instance id stamped on outgoing events.
func (b *Bridge) Origin() string {
	return b.origin
}

// Ready is closed once Run has subscribed.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// PublishToUser implements notify.Publisher.
func (b *Bridge) PublishToUser(ctx context.Context, userID string, ev notify.Event) {
	b.publish(ctx, targetUser, userID, ev)
}

// PublishToSession implements notify.Publisher.
func (b *Bridge) PublishToSession(ctx context.Context, sessionID string, ev notify.Event) {
	b.publish(ctx, targetSession, sessionID, ev)
}

func (b *Bridge) publish(ctx context.Context, target, key string, ev notify.Event) {
	payload, err := b.encode(target, key, ev)
	if err != nil {
		b.logger.Error("failed to encode bridged event", "type", ev.Type, "error", err)
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("failed to publish bridged event", "type", ev.Type, "channel", b.channel, "error", err)
	}
}

func (b *Bridge) encode(target, key string, ev notify.Event) ([]byte, error) {
	data, err := ev.Marshal()
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Origin: b.origin, Target: target, Key: key, Event: data})
}

// Run relays events from other instances until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("redis bridge subscribed", "channel", b.channel, "origin", b.origin)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.relay(ctx, []byte(msg.Payload))
		}
	}
}

// relay delivers one channel message locally unless it came from this
// instance.
func (b *Bridge) relay(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("dropping malformed bridged message", "error", err)
		return
	}
	if env.Origin == b.origin {
		return
	}

	var ev notify.Event
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		b.logger.Warn("dropping malformed bridged event", "origin", env.Origin, "error", err)
		return
	}

	switch env.Target {
	case targetUser:
		b.local.PublishToUser(ctx, env.Key, ev)
	case targetSession:
		b.local.PublishToSession(ctx, env.Key, ev)
	default:
		b.logger.Warn("dropping bridged event with unknown target", "target", env.Target)
	}
}
