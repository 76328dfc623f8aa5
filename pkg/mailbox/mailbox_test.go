// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package mailbox

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMailbox_Coalesces(t *testing.T) {
	m := New()

	m.Set([]byte("one"))
	m.Set([]byte("two"))
	m.Set([]byte("three"))

	frame, ok := m.TryTake()
	if !ok {
		t.Fatal("TryTake() returned false with a pending frame")
	}
	if !bytes.Equal(frame, []byte("three")) {
		t.Errorf("TryTake() = %q, want %q", frame, "three")
	}
	if got := m.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if m.Pending() {
		t.Error("Pending() should be false after TryTake")
	}
}

func TestMailbox_SingleInFlight(t *testing.T) {
	m := New()
	m.Set([]byte("a"))

	if _, ok := m.TryTake(); !ok {
		t.Fatal("first TryTake() should succeed")
	}
	if !m.Sending() {
		t.Error("Sending() should be true after TryTake")
	}

	m.Set([]byte("b"))
	if _, ok := m.TryTake(); ok {
		t.Fatal("TryTake() should fail while a frame is in flight")
	}

	// Drain the wake from Set so Done's wake is observable.
	<-m.Ready()
	m.Done()

	select {
	case <-m.Ready():
	case <-time.After(time.Second):
		t.Fatal("Done() should wake the sender when a frame is pending")
	}

	frame, ok := m.TryTake()
	if !ok || !bytes.Equal(frame, []byte("b")) {
		t.Errorf("TryTake() = %q, %v; want %q, true", frame, ok, "b")
	}
}

func TestMailbox_EmptyTake(t *testing.T) {
	m := New()
	if frame, ok := m.TryTake(); ok || frame != nil {
		t.Errorf("TryTake() = %v, %v; want nil, false", frame, ok)
	}
	m.Done()
	if m.Sending() {
		t.Error("Done() on an idle mailbox should leave it idle")
	}
}

func TestMailbox_SetCopies(t *testing.T) {
	m := New()
	src := []byte{1, 2, 3}
	m.Set(src)
	src[0] = 9

	frame, _ := m.TryTake()
	if frame[0] != 1 {
		t.Errorf("Set() should copy the frame, got %v", frame)
	}
}

func TestMailbox_SetNeverBlocks(t *testing.T) {
	m := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Set([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Set() blocked without a reader")
	}
}

func TestMailbox_WaitContextCancelled(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want %v", err, context.Canceled)
	}
}

func TestMailbox_ConcurrentProducers(t *testing.T) {
	m := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const producers, perProducer = 4, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Set([]byte{byte(p), byte(i)})
			}
		}(p)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	var taken uint64
	for {
		select {
		case <-finished:
			if _, ok := m.TryTake(); ok {
				taken++
				m.Done()
			}
			if total := taken + m.Dropped(); total != producers*perProducer {
				t.Errorf("taken+dropped = %d, want %d", total, producers*perProducer)
			}
			return
		case <-m.Ready():
			if _, ok := m.TryTake(); ok {
				taken++
				m.Done()
			}
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
}
