package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

const busPublishTimeout = 2 * time.Second

// EventBus republishes room and presence broadcasts to the other API nodes and
// delivers theirs locally. NATS is used when configured, Redis pub/sub otherwise.
// Direct pushes never cross nodes because each registry only knows its own sockets.
type EventBus struct {
	hub          *realtime.Hub
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

type busEvent struct {
	Source string         `json:"source"`
	Room   string         `json:"room,omitempty"`
	Except []string       `json:"except,omitempty"`
	Event  realtime.Event `json:"event"`
	SentAt time.Time      `json:"sent_at"`
}

// NewEventBus constructs a bus for hub. Either client may be nil; with both nil the
// bus only serves the local node.
func NewEventBus(hub *realtime.Hub, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *EventBus {
	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":realtime"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".realtime"
	}

	bus := &EventBus{
		hub:          hub,
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "realtime_bus").Logger(),
	}
	return bus
}

// NodeID identifies this process on the bus.
func (b *EventBus) NodeID() string {
	return b.nodeID
}

func (b *EventBus) transport() string {
	switch {
	case b.nats != nil && b.natsSubject != "":
		return "nats"
	case b.redis != nil && b.redisChannel != "":
		return "redis"
	default:
		return ""
	}
}

// Start subscribes to the configured transport until ctx is cancelled.
func (b *EventBus) Start(ctx context.Context) {
	switch b.transport() {
	case "nats":
		b.consumeNATS(ctx)
	case "redis":
		go b.consumeRedis(ctx)
	}
}

// Relay implements realtime.Relay.
func (b *EventBus) Relay(broadcast realtime.Broadcast) {
	transport := b.transport()
	if transport == "" {
		return
	}

	payload, err := json.Marshal(busEvent{
		Source: b.nodeID,
		Room:   broadcast.Room,
		Except: broadcast.Except,
		Event:  broadcast.Event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal realtime event")
		return
	}

	switch transport {
	case "nats":
		err = b.nats.Publish(b.natsSubject, payload)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), busPublishTimeout)
		err = b.redis.Publish(ctx, b.redisChannel, payload).Err()
		cancel()
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("transport", transport).Msg("failed to publish realtime event")
		return
	}
	observability.BusEvents().WithLabelValues(transport, "out").Inc()
}

func (b *EventBus) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		b.handleEvent("redis", []byte(msg.Payload))
	}
}

func (b *EventBus) consumeNATS(ctx context.Context) {
	// Plain subscription: every node must see every broadcast.
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleEvent("nats", msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (b *EventBus) handleEvent(transport string, data []byte) int {
	var event busEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid realtime event")
		return 0
	}
	if event.Source == b.nodeID {
		return 0
	}

	observability.BusEvents().WithLabelValues(transport, "in").Inc()
	return b.hub.Deliver(realtime.Broadcast{Room: event.Room, Event: event.Event, Except: event.Except})
}
