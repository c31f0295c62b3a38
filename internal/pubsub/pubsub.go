package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
// It is intentionally simple to act as a wrapper for raw data.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "lerncasino_global_chat").
	Topic string
	// UserID identifies the user who initiated the message, when known.
	UserID string
	// Payload contains the raw message data (e.g., a JSON chat message).
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context (e.g., the publishing client).
	Metadata map[string]string
}

// MetaKeyOrigin is the metadata key a publisher uses to identify itself so that
// subscribers can skip their own messages.
const MetaKeyOrigin = "origin"

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the Pub/Sub system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the Pub/Sub system.
type Subscriber interface {
	// Subscribe starts listening to the given topic, processing messages with the handler.
	// It returns once the subscription is active; delivery stops when ctx is canceled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is a broadcast medium that can both publish and subscribe.
type Bus interface {
	Publisher
	Subscriber
}
