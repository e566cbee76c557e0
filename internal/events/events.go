// Package events defines the notifications published by the plot engine and
// an in-process bus for delivering them.
package events

import (
	"sync"
	"sync/atomic"
)

// Type identifies one kind of engine notification.
type Type string

const (
	TypeCategoryVisibility Type = "category-visibility-changed"
	TypeZOrder             Type = "z-order-changed"
	TypeColorShapeMapping  Type = "color-shape-mapping-changed"
	TypeSelection          Type = "selection-changed"
	TypeHover              Type = "hover-changed"
	TypeIsolationMode      Type = "isolation-mode-changed"
	TypeDataReplaced       Type = "data-replaced"
)

// Event is one engine notification. Payload holds the typed payload struct
// for the event's type.
type Event struct {
	Type    Type        `json:"type"`
	Dataset string      `json:"dataset,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// VisibilityPayload accompanies TypeCategoryVisibility.
type VisibilityPayload struct {
	Category string   `json:"category"`
	Hidden   []string `json:"hidden"`
}

// ZOrderPayload accompanies TypeZOrder. Order lists values by draw rank.
type ZOrderPayload struct {
	Category string   `json:"category"`
	Order    []string `json:"order"`
}

// MappingPayload accompanies TypeColorShapeMapping.
type MappingPayload struct {
	Category string            `json:"category"`
	Colors   map[string]string `json:"colors"`
	Shapes   map[string]string `json:"shapes,omitempty"`
}

// SelectionPayload accompanies TypeSelection.
type SelectionPayload struct {
	IDs []string `json:"ids"`
}

// HoverPayload accompanies TypeHover. An empty ID means nothing is hovered.
type HoverPayload struct {
	ID string `json:"id"`
}

// IsolationPayload accompanies TypeIsolationMode.
type IsolationPayload struct {
	Active bool `json:"active"`
	Depth  int  `json:"depth"`
}

// DataReplacedPayload accompanies TypeDataReplaced.
type DataReplacedPayload struct {
	Points int `json:"points"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	next    int
	subs    map[int]chan Event
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel plus an unsubscribe function. Unsubscribing closes the
// channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were not delivered to a subscriber.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
