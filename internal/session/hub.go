package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oggyb/moviematch/internal/metrics"
)

// Publisher fans a committed snapshot out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, s *Session)
}

// Hub is the in-process pub/sub channel keyed by session code.
//
// Delivery rules per subscription:
//   - Callbacks run one at a time on the subscription's own goroutine.
//   - Snapshots not newer than the last delivered version are dropped, so a
//     subscriber never sees state go backwards.
//   - No callback starts after Unsubscribe returns. Unsubscribe waits out a
//     delivery that is between its closed check and the callback; a callback
//     already executing is left to finish, so calling Unsubscribe from inside
//     one does not deadlock.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one registered listener.
type Subscription struct {
	hub  *Hub
	code string
	fn   func(*Session)

	qmu     sync.Mutex
	pending []*Session
	notify  chan struct{}
	done    chan struct{}

	// cbMu is held for the whole callback; inCallback is set while it is.
	cbMu       sync.Mutex
	inCallback atomic.Bool
	closed     atomic.Bool
	once       sync.Once
}

// Subscribe registers fn for code and starts its delivery goroutine.
// Callers normally follow with Offer to push the current state.
func (h *Hub) Subscribe(code string, fn func(*Session)) *Subscription {
	sub := &Subscription{
		hub:    h,
		code:   code,
		fn:     fn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.subs[code] == nil {
		h.subs[code] = make(map[*Subscription]struct{})
	}
	h.subs[code][sub] = struct{}{}
	h.mu.Unlock()
	metrics.SubscribersActive.Inc()

	go sub.run()
	return sub
}

// Publish queues a copy of s for every subscriber of s.Code.
func (h *Hub) Publish(_ context.Context, s *Session) {
	if s == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[s.Code] {
		sub.enqueue(s.Clone())
	}
}

// Subscribers returns how many listeners code has.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[code])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.code]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.code)
		}
	}
}

// Offer queues the initial state. snapshot may be nil when the session does not
// exist; a nil offer is delivered only if nothing else was delivered first.
func (s *Subscription) Offer(snapshot *Session) {
	s.qmu.Lock()
	s.pending = append(s.pending, snapshot.Clone())
	s.qmu.Unlock()
	s.signal()
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		if !s.inCallback.Load() {
			s.cbMu.Lock()
			s.cbMu.Unlock()
		}
		close(s.done)
		s.hub.remove(s)
		metrics.SubscribersActive.Dec()
	})
}

func (s *Subscription) enqueue(snapshot *Session) {
	s.qmu.Lock()
	s.pending = append(s.pending, snapshot)
	s.qmu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	lastVersion := int64(-1)
	delivered := false
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.qmu.Lock()
		batch := s.pending
		s.pending = nil
		s.qmu.Unlock()

		for _, snap := range batch {
			if snap == nil {
				if delivered {
					continue
				}
			} else if snap.Version <= lastVersion {
				continue
			}
			if !s.invoke(snap) {
				return
			}
			delivered = true
			if snap != nil {
				lastVersion = snap.Version
			}
		}
	}
}

// invoke runs the callback unless the subscription is closed. The closed check
// and the callback share one critical section with Unsubscribe.
func (s *Subscription) invoke(snap *Session) bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	s.fn(snap)
	return true
}
