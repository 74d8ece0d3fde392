// Package feed pushes newly appended Events and Alerts to subscribers.
// Delivery is decoupled from ingestion by a bounded queue per subscriber:
// a slow or gone consumer loses items and is marked as having missed data,
// it never blocks the engine. History is served by store queries, not here.
package feed

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mizuno-sec/vigil/internal/model"
)

const DefaultBacklog = 256

// Item carries exactly one of an Event or an Alert.
type Item struct {
	Event *model.Event `json:"event,omitempty"`
	Alert *model.Alert `json:"alert,omitempty"`
}

type Subscriber struct {
	id                string
	hub               *Hub
	ch                chan Item
	includeSuppressed bool

	missed    atomic.Int64
	closeOnce sync.Once
}

func (s *Subscriber) ID() string { return s.id }

// C yields items published after Subscribe. It is closed by Close.
func (s *Subscriber) C() <-chan Item { return s.ch }

// Missed counts items dropped for this subscriber because its backlog was
// full. A non-zero value means the subscriber should re-query the store.
func (s *Subscriber) Missed() int64 { return s.missed.Load() }

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s.id)
		close(s.ch)
	})
}

type Hub struct {
	backlog int
	onDrop  func()

	mu   sync.Mutex
	subs map[string]*Subscriber
}

func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{backlog: backlog, subs: make(map[string]*Subscriber)}
}

// SetDropHook installs a callback invoked once per dropped item, for
// metrics. Must be set before the first Publish.
func (h *Hub) SetDropHook(fn func()) { h.onDrop = fn }

// Subscribe registers a new subscriber; it receives only items published
// afterwards. Suppressed alerts are excluded unless includeSuppressed.
func (h *Hub) Subscribe(includeSuppressed bool) *Subscriber {
	s := &Subscriber{
		id:                uuid.NewString(),
		hub:               h,
		ch:                make(chan Item, h.backlog),
		includeSuppressed: includeSuppressed,
	}
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) PublishEvent(ev model.Event) {
	h.publish(Item{Event: &ev}, false)
}

func (h *Hub) PublishAlert(a model.Alert) {
	h.publish(Item{Alert: &a}, a.Suppressed)
}

func (h *Hub) publish(it Item, suppressed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if suppressed && !s.includeSuppressed {
			continue
		}
		select {
		case s.ch <- it:
		default:
			s.missed.Add(1)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}
