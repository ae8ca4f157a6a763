package server

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
)

const (
	EventCatalogChanged = "catalog-change"
	eventHeartbeat      = "heartbeat"
	eventSource         = "cuisine-backend"
)

// EventHub fans catalog change notices out to every open event stream.
// It implements catalog.ChangeNotifier.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan catalog.ChangeNotice
}

var _ catalog.ChangeNotifier = (*EventHub)(nil)

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that lives until ctx is done or the returned cleanup runs.
func (h *EventHub) Subscribe(ctx context.Context) (<-chan catalog.ChangeNotice, func()) {
	h.mu.Lock()
	h.nextID++
	subscriber := &eventSubscriber{
		id:     h.nextID,
		stream: make(chan catalog.ChangeNotice, h.bufferSize),
	}
	h.subscribers[subscriber.id] = subscriber
	h.mu.Unlock()

	cleanup := func() {
		h.unregister(subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// NotifyChange delivers notice to every subscriber without blocking; a full stream drops it.
func (h *EventHub) NotifyChange(notice catalog.ChangeNotice) {
	if notice.Kind == "" {
		return
	}
	h.mu.RLock()
	if len(h.subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	copies := make([]*eventSubscriber, 0, len(h.subscribers))
	for _, subscriber := range h.subscribers {
		copies = append(copies, subscriber)
	}
	h.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- notice:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *EventHub) unregister(subscriberID int64) {
	h.mu.Lock()
	delete(h.subscribers, subscriberID)
	h.mu.Unlock()
}
