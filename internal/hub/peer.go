package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nfrund/lernsino/internal/domain"
	"github.com/nfrund/lernsino/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 << 20
	peerSendBuffer = 256
)

// Peer is one websocket connection to the hub.
type Peer struct {
	id   string
	conn *websocket.Conn

	mu   sync.RWMutex
	send chan []byte

	// Set by the read pump only.
	username string

	hub    *Hub
	store  *StatsStore
	logger *slog.Logger
}

func newPeer(conn *websocket.Conn, h *Hub, store *StatsStore, logger *slog.Logger) *Peer {
	id := uuid.NewString()
	return &Peer{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, peerSendBuffer),
		hub:    h,
		store:  store,
		logger: logger.With("peer_id", id),
	}
}

// ID returns the connection id.
func (p *Peer) ID() string {
	return p.id
}

// trySend queues frame without blocking. It reports false when the queue is
// full or the peer is closed.
func (p *Peer) trySend(frame []byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.send == nil {
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

// Close closes the send queue, which makes the write pump hang up. Safe to call repeatedly.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.send != nil {
		close(p.send)
		p.send = nil
	}
}

// queue returns the send channel for the write pump.
func (p *Peer) queue() chan []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.send
}

// readPump handles inbound frames until the connection fails.
func (p *Peer) readPump() {
	defer func() {
		p.hub.Unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxFrameSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Warn("Peer read error", "error", err)
			} else {
				p.logger.Debug("Peer disconnected", "error", err)
			}
			return
		}
		p.handle(data)
	}
}

func (p *Peer) handle(data []byte) {
	switch f := protocol.Decode(data).(type) {
	case protocol.Login:
		if f.Username == "" {
			p.logger.Warn("Ignoring login without username")
			return
		}
		p.username = f.Username
		p.logger.Info("Peer logged in", "username", f.Username)
		p.reply(protocol.InitState{Stats: p.store.Get(f.Username)})

	case protocol.StateUpdate:
		if p.username == "" {
			p.logger.Warn("Ignoring state update before login")
			return
		}
		p.store.Put(p.username, f.Stats)
		p.logger.Debug("Stored user stats", "username", p.username, "bytes", len(f.Stats))

	case protocol.Chat:
		frame, err := protocol.Encode(f)
		if err != nil {
			p.logger.Error("Failed to encode chat frame", "error", err)
			return
		}
		p.hub.Broadcast(frame)

	case protocol.Unknown:
		p.logger.Warn("Dropping unrecognised frame", "bytes", len(data), "error", f.Err)

	default:
		p.logger.Debug("Ignoring unexpected frame from peer", "kind", f.Kind())
	}
}

func (p *Peer) reply(f protocol.Frame) {
	frame, err := protocol.Encode(f)
	if err != nil {
		p.logger.Error("Failed to encode reply", "kind", f.Kind(), "error", err)
		return
	}
	if !p.trySend(frame) {
		p.logger.Warn("Dropping reply", "kind", f.Kind(), "error", domain.ErrSendQueueFull)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	send := p.queue()
	if send == nil {
		return
	}
	for {
		select {
		case frame, ok := <-send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closing"))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				p.logger.Warn("Peer write error", "error", err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.logger.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}
