package multiplayer

import (
	"sync"

	"github.com/nfrund/lernsino/internal/domain"
)

// event is anything the event loop processes.
type event any

type (
	connectRequested struct{}
	loginRequested   struct{ username string }
	sendRequested    struct{ msg domain.ChatMessage }
	updateRequested  struct{ stats domain.UserStats }

	dialed struct {
		conn Conn
		err  error
	}
	frameReceived struct {
		link *link
		data []byte
	}
	linkClosed struct {
		link *link
		err  error
	}
	reconnectTick struct{ timer *retryTimer }
	localReceived struct{ msg domain.ChatMessage }
)

// mailbox is the event loop's unbounded queue, so posting never blocks.
type mailbox struct {
	mu     sync.Mutex
	queue  []event
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// post enqueues ev. It reports false once the mailbox is closed.
func (m *mailbox) post(ev event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

// close rejects further posts and returns whatever was still queued.
func (m *mailbox) close() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	q := m.queue
	m.queue = nil
	return q
}
