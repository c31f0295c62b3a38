package multiplayer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nfrund/lernsino/internal/domain"
	"github.com/nfrund/lernsino/internal/pubsub"
	"github.com/stretchr/testify/require"
)

const testInterval = 10 * time.Millisecond

// fakeConn is an in-memory hub connection.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("write on closed connection")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// push delivers a frame from the hub.
func (f *fakeConn) push(frame string) {
	f.inbound <- []byte(frame)
}

// drop simulates the hub going away.
func (f *fakeConn) drop() {
	f.Close()
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.written))
	for i, w := range f.written {
		out[i] = string(w)
	}
	return out
}

// fakeDialer accepts or refuses connections on demand and can hold dials until released.
type fakeDialer struct {
	mu       sync.Mutex
	accept   bool
	gate     chan struct{}
	attempts int
	conns    []*fakeConn
}

func newFakeDialer(accept bool) *fakeDialer {
	return &fakeDialer{accept: accept}
}

// hold makes subsequent dials wait until release is called.
func (d *fakeDialer) hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
}

func (d *fakeDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

func (d *fakeDialer) setAccept(accept bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accept = accept
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.attempts++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.accept {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// countingBus records how many subscriptions were opened on the wrapped bus.
type countingBus struct {
	pubsub.Bus
	subscribes atomic.Int32
}

func (b *countingBus) Subscribe(ctx context.Context, topic string, handler pubsub.Handler) error {
	b.subscribes.Add(1)
	return b.Bus.Subscribe(ctx, topic, handler)
}

// recorder collects listener invocations.
type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func newTestClient(t *testing.T, dialer Dialer, opts ...Option) *Client {
	t.Helper()
	cfg := Config{
		URL:               "ws://hub.test",
		ReconnectInterval: testInterval,
		DialTimeout:       time.Second,
		FallbackChannel:   "test_" + t.Name(),
	}
	return newTestClientWithConfig(t, cfg, dialer, opts...)
}

func newTestClientWithConfig(t *testing.T, cfg Config, dialer Dialer, opts ...Option) *Client {
	t.Helper()
	c := New(cfg, append([]Option{WithDialer(dialer)}, opts...)...)
	t.Cleanup(func() {
		require.NoError(t, c.Shutdown())
	})
	return c
}

func chatMessages(msgs []domain.ChatMessage) []domain.ChatMessage {
	var out []domain.ChatMessage
	for _, m := range msgs {
		if !m.FromSystem() {
			out = append(out, m)
		}
	}
	return out
}

func systemMessages(msgs []domain.ChatMessage) []domain.ChatMessage {
	var out []domain.ChatMessage
	for _, m := range msgs {
		if m.FromSystem() {
			out = append(out, m)
		}
	}
	return out
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.IsConnected, 2*time.Second, time.Millisecond, "client never connected")
}

func waitDisconnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, time.Millisecond, "client never disconnected")
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}
