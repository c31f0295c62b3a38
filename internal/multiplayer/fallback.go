package multiplayer

import (
	"context"
	"fmt"

	"github.com/nfrund/lernsino/internal/domain"
	"github.com/nfrund/lernsino/internal/pubsub"
)

// localModeNotice is the system message emitted when chat falls back to the local channel.
const localModeNotice = "Using local mode (same device only). Start the hub for global chat."

// localChannel relays chat between clients that share one bus. It carries raw
// chat messages only; there is no login or state sync in local mode.
type localChannel struct {
	bus    pubsub.Bus
	event  pubsub.Event[domain.ChatMessage]
	origin string
}

// openLocalChannel subscribes to the named channel. Messages published by
// origin itself are skipped, so a client never hears its own broadcasts.
// The subscription lives until ctx is canceled.
func openLocalChannel(ctx context.Context, bus pubsub.Bus, name, origin string, deliver func(domain.ChatMessage)) (*localChannel, error) {
	lc := &localChannel{
		bus:    bus,
		event:  pubsub.NewEvent[domain.ChatMessage](name),
		origin: origin,
	}

	err := bus.Subscribe(ctx, name, func(ctx context.Context, msg pubsub.Message) error {
		if msg.Metadata[pubsub.MetaKeyOrigin] == origin {
			return nil
		}
		chat, err := pubsub.Decode(lc.event, msg)
		if err != nil {
			return err
		}
		deliver(chat)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to local channel %q: %w", name, err)
	}
	return lc, nil
}

func (lc *localChannel) publish(ctx context.Context, msg domain.ChatMessage) error {
	return pubsub.Publish(ctx, lc.bus, lc.event, msg, map[string]string{
		pubsub.MetaKeyOrigin: lc.origin,
	})
}
