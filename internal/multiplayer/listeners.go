package multiplayer

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// Unsubscribe removes exactly the subscription that returned it.
// Calling it more than once is a no-op.
type Unsubscribe func()

type subscription[T any] struct {
	id      uint64
	fn      func(T)
	removed atomic.Bool

	// mu serializes deliveries to fn.
	mu sync.Mutex
	// seen is the highest generation delivered, guarded by mu. Only the
	// connection stream uses generations.
	seen uint64
}

// registry is an ordered set of listeners keyed by subscription handle, so the
// same function registered twice yields two independent subscriptions.
type registry[T any] struct {
	stream string
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []*subscription[T]
}

func newRegistry[T any](stream string, logger *slog.Logger) *registry[T] {
	return &registry[T]{stream: stream, logger: logger}
}

func (r *registry[T]) add(fn func(T)) (*subscription[T], Unsubscribe) {
	r.mu.Lock()
	r.nextID++
	sub := &subscription[T]{id: r.nextID, fn: fn}
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() { r.remove(sub) })
	}
}

func (r *registry[T]) remove(sub *subscription[T]) {
	sub.removed.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()
	if i := slices.Index(r.subs, sub); i >= 0 {
		r.subs = slices.Delete(r.subs, i, i+1)
	}
}

func (r *registry[T]) snapshot() []*subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.subs)
}

// emit delivers v to every listener in registration order.
func (r *registry[T]) emit(v T) {
	for _, sub := range r.snapshot() {
		sub.mu.Lock()
		if !sub.removed.Load() {
			r.invoke(sub, v)
		}
		sub.mu.Unlock()
	}
}

// emitGen is emit for generation-stamped values: a listener that has already
// observed gen (through its subscribe-time replay) is skipped.
func (r *registry[T]) emitGen(v T, gen uint64) {
	for _, sub := range r.snapshot() {
		sub.mu.Lock()
		if !sub.removed.Load() && gen > sub.seen {
			sub.seen = gen
			r.invoke(sub, v)
		}
		sub.mu.Unlock()
	}
}

// invoke runs one listener, containing any panic so the remaining listeners still run.
func (r *registry[T]) invoke(sub *subscription[T], v T) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Listener panicked", "stream", r.stream, "subscription", sub.id, "panic", p)
		}
	}()
	sub.fn(v)
}
