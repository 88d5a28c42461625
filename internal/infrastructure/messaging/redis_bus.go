package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

const (
	DefaultChannel = "admissions:events"

	publishTimeout = 2 * time.Second
)

type RedisEventBusConfig struct {
	Channel        string // DefaultChannel when empty
	LocalBusConfig InMemoryEventBusConfig
	Logger         *slog.Logger
}

// RedisEventBus relays events between processes. Publish delivers to local
// handlers at once and broadcasts an envelope tagged with this instance's
// ID; envelopes carrying our own ID are ignored on the way back.
type RedisEventBus struct {
	*InMemoryEventBus // local delivery, Subscribe and Metrics

	client     redis.UniversalClient
	channel    string
	instanceID string
	log        *slog.Logger

	pubsub    *redis.PubSub
	stop      context.CancelFunc
	loop      sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisEventBus subscribes before returning so that no event published
// after construction is missed.
func NewRedisEventBus(ctx context.Context, client redis.UniversalClient, cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LocalBusConfig.Logger == nil {
		cfg.LocalBusConfig.Logger = cfg.Logger
	}

	pubsub := client.Subscribe(ctx, cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Channel, err)
	}

	b := newRedisEventBus(client, NewInMemoryEventBus(cfg.LocalBusConfig), cfg.Channel, cfg.Logger)
	b.pubsub = pubsub
	loopCtx, stop := context.WithCancel(context.Background())
	b.stop = stop

	b.loop.Add(1)
	go func() {
		defer b.loop.Done()
		messages := pubsub.Channel()
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.handleMessage(msg.Payload)
			}
		}
	}()
	return b, nil
}

func newRedisEventBus(client redis.UniversalClient, local *InMemoryEventBus, channel string, log *slog.Logger) *RedisEventBus {
	return &RedisEventBus{
		InMemoryEventBus: local,
		client:           client,
		channel:          channel,
		instanceID:       uuid.NewString(),
		log:              log.With("component", "redis_event_bus"),
		stop:             func() {},
	}
}

// Publish never fails because of Redis: a broadcast error is logged and the
// local handlers still run.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}
	data, err := json.Marshal(newEnvelope(b.instanceID, event))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}
	if err := b.InMemoryEventBus.Publish(event); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.log.Error("broadcast failed", "event_type", event.EventType(), "channel", b.channel, "error", err)
	}
	return nil
}

func (b *RedisEventBus) handleMessage(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Error("undecodable event", "channel", b.channel, "error", err)
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}
	if err := b.InMemoryEventBus.Publish(remoteEvent{env}); err != nil {
		b.log.Warn("remote event dropped", "event_type", env.Type, "error", err)
	}
}

// Close stops the receive loop, then drains the local bus.
func (b *RedisEventBus) Close() error {
	b.closeOnce.Do(func() {
		b.stop()
		if b.pubsub != nil {
			if err := b.pubsub.Close(); err != nil {
				b.log.Warn("unsubscribe failed", "error", err)
			}
		}
		b.loop.Wait()
	})
	return b.InMemoryEventBus.Close()
}

// envelope is the wire form of an event.
type envelope struct {
	InstanceID  string           `json:"instance_id"`
	Type        shared.EventType `json:"type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

func newEnvelope(instanceID string, e shared.Event) envelope {
	return envelope{
		InstanceID:  instanceID,
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  e.OccurredAt(),
		Payload:     e.Payload(),
	}
}

// remoteEvent exposes a received envelope as a shared.Event. JSON numbers in
// the payload decode as float64.
type remoteEvent struct{ env envelope }

func (e remoteEvent) EventType() shared.EventType { return e.env.Type }
func (e remoteEvent) AggregateID() string         { return e.env.AggregateID }
func (e remoteEvent) OccurredAt() time.Time       { return e.env.OccurredAt }
func (e remoteEvent) Payload() map[string]any     { return e.env.Payload }
