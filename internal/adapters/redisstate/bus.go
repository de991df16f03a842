package redisstate

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
)

const (
	RoomEventsChannel = "room_events"
	PortalsChannel    = "portals"
)

// RoomBus relays room broadcasts between coordinator instances. Every node
// receives every envelope; receivers skip their own by node name.
type RoomBus struct {
	client  *redis.Client
	channel string
}

func NewRoomBus(client *redis.Client) *RoomBus {
	return &RoomBus{client: client, channel: RoomEventsChannel}
}

var _ core.RoomBus = (*RoomBus)(nil)

func (b *RoomBus) Publish(ctx context.Context, env core.RoomEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return domain.Transient("publish room event", err)
	}
	return nil
}

func (b *RoomBus) Subscribe(ctx context.Context, fn func(core.RoomEnvelope)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := pubsub.Receive(ctx); err != nil {
		return domain.Transient("subscribe room events", err)
	}
	log.Info().Str("module", "redisstate").Str("channel", b.channel).Msg("subscribed to room events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env core.RoomEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Str("module", "redisstate").Msg("bad room envelope")
				continue
			}
			fn(env)
		}
	}
}

// PortalChannel publishes forwarded control input for portal workers.
type PortalChannel struct {
	client  *redis.Client
	channel string
}

func NewPortalChannel(client *redis.Client) *PortalChannel {
	return &PortalChannel{client: client, channel: PortalsChannel}
}

var _ core.PortalChannel = (*PortalChannel)(nil)

func (p *PortalChannel) Publish(ctx context.Context, payload []byte) error {
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return domain.Transient("publish portal input", err)
	}
	return nil
}
