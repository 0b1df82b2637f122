package events

import (
	"context"
	"sync"

	"github.com/rindah89/barter/pkg/model"
)

// MemoryBus delivers message events synchronously to in-process subscribers.
// It backs development mode and tests.
type MemoryBus struct {
	mu        sync.Mutex
	nextID    int
	subs      map[string]map[int]func(model.MessageEvent)
	published []model.MessageEvent
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func(model.MessageEvent))}
}

func (b *MemoryBus) PublishMessageEvent(_ context.Context, ev model.MessageEvent) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	handlers := make([]func(model.MessageEvent), 0, len(b.subs[ev.RoomID]))
	for _, fn := range b.subs[ev.RoomID] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

// SubscribeRoom registers fn for roomID and returns its cancel function.
func (b *MemoryBus) SubscribeRoom(roomID string, fn func(model.MessageEvent)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[int]func(model.MessageEvent))
	}
	b.subs[roomID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[roomID], id)
			if len(b.subs[roomID]) == 0 {
				delete(b.subs, roomID)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions for roomID.
func (b *MemoryBus) Subscribers(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[roomID])
}

// Published returns a copy of every event published so far.
func (b *MemoryBus) Published() []model.MessageEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.MessageEvent(nil), b.published...)
}
