package multiplayer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/lernsino/internal/domain"
)

const (
	// sendBuffer is the number of outbound frames queued per connection.
	sendBuffer = 256
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
	// readLimit caps an inbound frame. Chat text has no protocol limit, so keep it generous.
	readLimit = 8 << 20
)

// Conn is an established remote channel carrying text frames.
type Conn interface {
	// Read blocks until the next frame arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens remote channels to the hub.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the hub over a websocket.
type WebSocketDialer struct {
	// HTTPHeader is sent with the opening handshake.
	HTTPHeader http.Header
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.HTTPHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "client closing")
}

// link is the client's side of one open connection: a read pump feeding the
// event loop and a write pump draining the send queue.
type link struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLink(conn Conn) *link {
	return &link{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. Only the event loop calls it.
func (l *link) enqueue(data []byte) error {
	select {
	case <-l.done:
		return domain.ErrNotConnected
	default:
	}
	select {
	case l.send <- data:
		return nil
	default:
		return domain.ErrSendQueueFull
	}
}

func (l *link) close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

// readPump pumps frames from the connection to the event loop until it fails.
func (l *link) readPump(ctx context.Context, post func(event) bool) {
	for {
		data, err := l.conn.Read(ctx)
		if err != nil {
			post(linkClosed{link: l, err: err})
			return
		}
		post(frameReceived{link: l, data: data})
	}
}

// writePump pumps queued frames to the connection.
func (l *link) writePump(ctx context.Context, post func(event) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case data := <-l.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := l.conn.Write(wctx, data)
			cancel()
			if err != nil {
				post(linkClosed{link: l, err: err})
				return
			}
		}
	}
}
