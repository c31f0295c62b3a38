package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) get() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestWatermillBridge_FanOut(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var a, b collector
	require.NoError(t, bridge.Subscribe(ctx, "room", a.handle))
	require.NoError(t, bridge.Subscribe(ctx, "room", b.handle))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "room",
		Payload:  []byte("hello"),
		Metadata: map[string]string{MetaKeyOrigin: "tab-1"},
	}))

	assert.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	got := a.get()[0]
	assert.Equal(t, "room", got.Topic)
	assert.Equal(t, []byte("hello"), got.Payload)
	assert.Equal(t, "tab-1", got.Metadata[MetaKeyOrigin])
	assert.NotContains(t, got.Metadata, metaKeyTopic)
}

func TestWatermillBridge_CancelStopsDelivery(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	subCtx, cancelSub := context.WithCancel(context.Background())
	var stopped, live collector
	require.NoError(t, bridge.Subscribe(subCtx, "room", stopped.handle))
	require.NoError(t, bridge.Subscribe(context.Background(), "room", live.handle))

	cancelSub()
	// Give gochannel a moment to drop the canceled subscriber.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bridge.Publish(context.Background(), Message{Topic: "room", Payload: []byte("x")}))

	assert.Eventually(t, func() bool { return live.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, stopped.len())
}

func TestWatermillBridge_HandlerErrorDoesNotRedeliver(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bridge.Subscribe(ctx, "room", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room", Payload: []byte("x")}))

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

type chatLine struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func TestTypedEvent_PublishDecode(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := NewEvent[chatLine]("typed.room")
	assert.Equal(t, "typed.room", event.Name())

	got := make(chan chatLine, 1)
	require.NoError(t, bridge.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		line, err := Decode(event, msg)
		if err != nil {
			return err
		}
		got <- line
		return nil
	}))

	require.NoError(t, Publish(ctx, bridge, event, chatLine{ID: "1", Text: "hi"}, nil))

	select {
	case line := <-got:
		assert.Equal(t, chatLine{ID: "1", Text: "hi"}, line)
	case <-time.After(2 * time.Second):
		t.Fatal("typed message not delivered")
	}
}

func TestTypedEvent_DecodeError(t *testing.T) {
	event := NewEvent[chatLine]("typed.room")
	_, err := Decode(event, Message{Topic: "typed.room", Payload: []byte("{")})
	assert.Error(t, err)
}
