package querykit

import (
	"sync"
	"time"
)

// EventType identifies a state-change notification.
type EventType int

const (
	EventRequestStart EventType = iota
	EventRequestSuccess
	EventRequestError
	EventMutationStart
	EventMutationSuccess
	EventMutationError
	EventInvalidated
	EventCacheCleared
)

func (t EventType) String() string {
	switch t {
	case EventRequestStart:
		return "request_start"
	case EventRequestSuccess:
		return "request_success"
	case EventRequestError:
		return "request_error"
	case EventMutationStart:
		return "mutation_start"
	case EventMutationSuccess:
		return "mutation_success"
	case EventMutationError:
		return "mutation_error"
	case EventInvalidated:
		return "invalidated"
	case EventCacheCleared:
		return "cache_cleared"
	default:
		return "unknown"
	}
}

// Event is one state-change notification.
type Event struct {
	Type     EventType
	Key      string
	Endpoint string
	Err      error
	At       time.Time
}

type subscriber struct {
	pred func(Event) bool
	fn   func(Event)
}

// EventBus fans out events to subscribers synchronously, in subscription
// order. Callbacks run on the publishing goroutine and must not block.
type EventBus struct {
	mu   sync.Mutex
	next int
	subs map[int]subscriber
	// order keeps fan-out deterministic; map iteration is not.
	order []int
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]subscriber)}
}

// Subscribe registers fn for every event matching pred (nil matches all) and
// returns an unsubscribe handle. Unsubscribing twice is a no-op.
func (b *EventBus) Subscribe(pred func(Event) bool, fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{pred: pred, fn: fn}
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to matching subscribers. The subscriber list is
// snapshotted first so callbacks may subscribe or unsubscribe freely.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := make([]subscriber, 0, len(b.order))
	for _, id := range b.order {
		if s, ok := b.subs[id]; ok {
			snapshot = append(snapshot, s)
		}
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		if s.pred == nil || s.pred(ev) {
			s.fn(ev)
		}
	}
}

// Len returns the number of live subscribers.
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
