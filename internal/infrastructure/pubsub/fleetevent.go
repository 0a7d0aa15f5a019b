// Package pubsub relays fleet events between soundmesh instances over Redis.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/shared/biztime"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

const fleetEventChannel = "soundmesh:fleet:events"

const (
	initialResubscribeDelay = time.Second
	maxResubscribeDelay     = 30 * time.Second
)

// FleetEventBus publishes fleet events and delivers the ones published by
// other instances.
type FleetEventBus interface {
	Publish(ctx context.Context, event fleet.Event) error
	Subscribe(ctx context.Context, handler func(event fleet.Event)) error
}

// RedisFleetEventBus implements FleetEventBus using Redis Pub/Sub.
type RedisFleetEventBus struct {
	client     *redis.Client
	logger     logger.Interface
	channel    string
	instanceID string // Unique ID for this instance to avoid self-delivery
}

// NewRedisFleetEventBus creates a new Redis-based fleet event bus.
func NewRedisFleetEventBus(client *redis.Client, logger logger.Interface) *RedisFleetEventBus {
	return &RedisFleetEventBus{
		client:     client,
		logger:     logger,
		channel:    fleetEventChannel,
		instanceID: uuid.NewString(),
	}
}

// InstanceID returns the ID stamped on events published by this bus.
func (b *RedisFleetEventBus) InstanceID() string { return b.instanceID }

// Publish stamps event with this instance's ID and publishes it.
func (b *RedisFleetEventBus) Publish(ctx context.Context, event fleet.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = biztime.NowUTC().Unix()
	}
	event.InstanceID = b.instanceID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fleet event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish fleet event",
			"event_type", event.Type,
			"node", event.NodeName,
			"error", err,
		)
		return fmt.Errorf("failed to publish fleet event: %w", err)
	}

	b.logger.Debugw("fleet event published to Redis",
		"event_type", event.Type,
		"node", event.NodeName,
	)
	return nil
}

// Subscribe delivers events from other instances until ctx ends. Events
// published by this instance are filtered out.
func (b *RedisFleetEventBus) Subscribe(ctx context.Context, handler func(event fleet.Event)) error {
	return b.subscribeWithReconnect(ctx, func(payload string) {
		var event fleet.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			b.logger.Warnw("failed to unmarshal fleet event",
				"payload", payload,
				"error", err,
			)
			return
		}

		if event.InstanceID == b.instanceID {
			return
		}

		handler(event)
	})
}

// subscribeWithReconnect wraps subscribe with automatic reconnection and exponential backoff.
func (b *RedisFleetEventBus) subscribeWithReconnect(ctx context.Context, handler func(payload string)) error {
	backoff := initialResubscribeDelay

	for {
		err := b.subscribe(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warnw("fleet subscription disconnected, reconnecting",
			"channel", b.channel,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxResubscribeDelay)
	}
}

func (b *RedisFleetEventBus) subscribe(ctx context.Context, handler func(payload string)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", b.channel, err)
	}

	b.logger.Infow("subscribed to fleet event channel",
		"channel", b.channel,
	)

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("fleet event subscriber stopped",
				"channel", b.channel,
				"reason", ctx.Err(),
			)
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("fleet event channel closed",
					"channel", b.channel,
				)
				return nil
			}

			goroutine.SafeGo(b.logger, "fleet-event-handler", func() {
				handler(msg.Payload)
			})
		}
	}
}
