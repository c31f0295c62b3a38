package hub

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Hub maintains the set of connected peers and broadcasts frames to them.
type Hub struct {
	peers map[*Peer]bool

	register   chan *Peer
	unregister chan *Peer
	broadcast  chan []byte
	done       chan struct{}

	count  atomic.Int32
	logger *slog.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		peers:      make(map[*Peer]bool),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every remaining peer.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for p := range h.peers {
			p.Close()
			delete(h.peers, p)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-h.register:
			h.peers[p] = true
			h.count.Store(int32(len(h.peers)))
			h.logger.Info("Peer registered", "peer_id", p.ID(), "total_peers", len(h.peers))

		case p := <-h.unregister:
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				p.Close()
				h.count.Store(int32(len(h.peers)))
				h.logger.Info("Peer unregistered", "peer_id", p.ID(), "total_peers", len(h.peers))
			}

		case frame := <-h.broadcast:
			h.logger.Debug("Broadcasting frame", "recipient_count", len(h.peers))
			for p := range h.peers {
				if !p.trySend(frame) {
					// A full buffer means the peer is stuck; drop it.
					delete(h.peers, p)
					p.Close()
					h.logger.Warn("Unregistering slow peer", "peer_id", p.ID(), "total_peers", len(h.peers))
				}
			}
			h.count.Store(int32(len(h.peers)))
		}
	}
}

// Register adds p to the broadcast set. It returns false once the hub has stopped.
func (h *Hub) Register(p *Peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes p and closes its send queue.
func (h *Hub) Unregister(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Broadcast queues frame for every registered peer, including its sender.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

// Len returns the number of registered peers.
func (h *Hub) Len() int {
	return int(h.count.Load())
}
