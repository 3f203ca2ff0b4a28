package soundtouch

import (
	"sync"

	"github.com/tessro/stctl/internal/core"
)

// EventBus fans update events out to handlers keyed by category.
// Handlers registered for core.UpdateAll receive every event.
type EventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[core.UpdateCategory]map[int]core.UpdateHandler
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[core.UpdateCategory]map[int]core.UpdateHandler),
	}
}

// Subscribe registers handler for category and returns a func that removes it.
func (b *EventBus) Subscribe(category core.UpdateCategory, handler core.UpdateHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[category] == nil {
		b.handlers[category] = make(map[int]core.UpdateHandler)
	}
	b.handlers[category][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[category], id)
			if len(b.handlers[category]) == 0 {
				delete(b.handlers, category)
			}
		})
	}
}

// Publish delivers ev to the category handlers, then to wildcard handlers.
// Handlers run on the caller's goroutine, outside the bus lock.
func (b *EventBus) Publish(ev core.UpdateEvent) {
	b.mu.RLock()
	var targets []core.UpdateHandler
	for _, h := range b.handlers[ev.Category] {
		targets = append(targets, h)
	}
	if ev.Category != core.UpdateAll {
		for _, h := range b.handlers[core.UpdateAll] {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(ev)
	}
}

// Len returns the number of registered handlers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, hs := range b.handlers {
		n += len(hs)
	}
	return n
}

// Clear removes every handler.
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[core.UpdateCategory]map[int]core.UpdateHandler)
}
