package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
)

// Handler processes one received event. A returned error is logged and
// the watch continues.
type Handler func(ctx context.Context, event *Event) error

// BusOptions configures a Bus.
type BusOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces channels as "<prefix>:<event_type>".
	Prefix string
}

// Bus publishes and watches strategy lifecycle events over Redis pub/sub.
type Bus struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// NewBus creates a Bus. No connection is made until first use.
func NewBus(opts BusOptions, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = Source
	}
	return &Bus{
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
		logger: logger,
	}
}

// Ping checks that Redis is reachable.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// ChannelFor returns the channel events of the given type are sent on.
func (b *Bus) ChannelFor(eventType string) string {
	return b.prefix + ":" + eventType
}

// Publish sends event on the channel for its type.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.EventType, err)
	}
	channel := b.ChannelFor(event.EventType)
	receivers, err := b.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	b.logger.Debug("Published event",
		"event_type", event.EventType,
		"channel", channel,
		"correlation_id", event.CorrelationID,
		"receivers", receivers,
	)
	return nil
}

// Watch delivers events of the given types to handler until ctx is
// cancelled. With no types it watches every channel under the bus prefix.
// It returns nil on cancellation.
func (b *Bus) Watch(ctx context.Context, eventTypes []string, handler Handler) error {
	var sub *redis.PubSub
	if len(eventTypes) == 0 {
		sub = b.rdb.PSubscribe(ctx, b.prefix+":*")
	} else {
		channels := make([]string, len(eventTypes))
		for i, t := range eventTypes {
			channels[i] = b.ChannelFor(t)
		}
		sub = b.rdb.Subscribe(ctx, channels...)
	}
	defer sub.Close()

	// Receive blocks until the subscription is confirmed, so a bad address
	// fails here instead of silently yielding nothing.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing: %w", err)
	}
	b.logger.Info("Watching events", "prefix", b.prefix, "types", strings.Join(eventTypes, ","))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				b.logger.Warn("Event subscription closed", "prefix", b.prefix)
				return nil
			}
			b.dispatch(ctx, msg, handler)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, msg *redis.Message, handler Handler) {
	event, err := UnmarshalEvent([]byte(msg.Payload))
	if err != nil {
		b.logger.Warn("Dropping malformed event",
			"channel", msg.Channel,
			"error", err,
			"payload_preview", truncate(msg.Payload, 200),
		)
		return
	}
	if err := handler(ctx, event); err != nil {
		b.logger.Error("Event handler failed",
			"event_type", event.EventType,
			"correlation_id", event.CorrelationID,
			"error", err,
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
