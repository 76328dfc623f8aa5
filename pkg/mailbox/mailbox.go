// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package mailbox provides a single-slot, overwrite-on-write hand-off
// between frame producers and the one goroutine that transmits them.
//
// A Mailbox never queues. Set replaces whatever is pending, so the sender
// always transmits the freshest frame available when it starts a
// transmission, and at most one frame is in flight at a time.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox holds at most one pending frame. The zero value is not usable;
// call New.
type Mailbox struct {
	mu      sync.Mutex
	pending []byte
	sending bool
	dropped uint64
	ready   chan struct{}
}

// New returns an empty mailbox.
func New() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Set stores a copy of frame as the pending frame, replacing any frame not
// yet taken, and wakes the sender. It never blocks.
func (m *Mailbox) Set(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	m.mu.Lock()
	if m.pending != nil {
		m.dropped++
	}
	m.pending = buf
	m.mu.Unlock()

	m.wake()
}

// TryTake returns the pending frame and clears the slot, marking a
// transmission in flight. It returns false when nothing is pending or a
// previous frame has not been released with Done.
func (m *Mailbox) TryTake() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sending || m.pending == nil {
		return nil, false
	}
	frame := m.pending
	m.pending = nil
	m.sending = true
	return frame, true
}

// Done ends the in-flight transmission. If a newer frame arrived meanwhile
// the sender is woken again.
func (m *Mailbox) Done() {
	m.mu.Lock()
	m.sending = false
	more := m.pending != nil
	m.mu.Unlock()

	if more {
		m.wake()
	}
}

// Ready returns a channel that receives when a frame may be available.
// Wakeups coalesce; always confirm with TryTake.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Wait blocks until a frame may be available or ctx is done.
func (m *Mailbox) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports whether a frame is waiting to be taken.
func (m *Mailbox) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Sending reports whether a frame is in flight.
func (m *Mailbox) Sending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending
}

// Dropped returns how many frames were replaced before being taken.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *Mailbox) wake() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
