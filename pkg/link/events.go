// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import (
	"sync"
	"time"
)

// EventType identifies what an Event reports.
type EventType string

// Event types published by the manager.
const (
	EventStateChanged EventType = "state"
	EventFrameSent    EventType = "frame_sent"
	EventSendFailed   EventType = "send_failed"
	EventLine         EventType = "line"
	EventHexLine      EventType = "hex_line"
)

// Event is a notification published to subscribers.
type Event struct {
	Type  EventType       `json:"type"`
	Time  time.Time       `json:"time"`
	State ConnectionState `json:"state"`
	Text  string          `json:"text,omitempty"`
	Bytes int             `json:"bytes,omitempty"`
	Error string          `json:"error,omitempty"`
}

// eventBus fans events out to subscribers without ever blocking the
// publisher. A subscriber whose channel is full misses the event.
type eventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

func (b *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *eventBus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
