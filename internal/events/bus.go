package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is a published event. RunID is empty for events outside a run.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	RunID     string                 `json:"run_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block.
type Handler func(event *Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to subscribers by type.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
	log    zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a function that
// removes it.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[eventType]
			for i, s := range list {
				if s.id == id {
					b.subs[eventType] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers event to every subscriber of its type. A panicking
// handler is logged and skipped.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[event.Type]))
	for i, s := range b.subs[event.Type] {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, event)
	}
}

// Emit publishes an event built from its parts.
func (b *Bus) Emit(eventType EventType, module, runID string, data map[string]interface{}) {
	b.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		RunID:     runID,
		Data:      data,
	})
}

// Subscribers returns the number of handlers registered for eventType
func (b *Bus) Subscribers(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

func (b *Bus) dispatch(h Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}
