// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errFakeTransport = errors.New("fake transport error")

// fakeCharacteristic records writes and exposes the notify callback.
type fakeCharacteristic struct {
	uuid     string
	maxWrite int
	owner    *fakeTransport

	mu     sync.Mutex
	writes [][]byte
	notify func([]byte)
}

func (c *fakeCharacteristic) UUID() string { return c.uuid }

func (c *fakeCharacteristic) WriteWithoutResponse(ctx context.Context, p []byte) error {
	if c.owner.takeWriteFailure() {
		return errFakeTransport
	}
	if c.owner.writeBlocks() {
		<-ctx.Done()
		return ctx.Err()
	}
	buf := make([]byte, len(p))
	copy(buf, p)

	c.mu.Lock()
	c.writes = append(c.writes, buf)
	c.mu.Unlock()
	return nil
}

func (c *fakeCharacteristic) Subscribe(fn func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
	return nil
}

func (c *fakeCharacteristic) MaxWriteSize() (int, bool) {
	return c.maxWrite, c.maxWrite > 0
}

func (c *fakeCharacteristic) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeCharacteristic) push(data []byte) {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// fakePeripheral is a connected fake peer.
type fakePeripheral struct {
	chars    []*fakeCharacteristic
	charErr  error
	dropOnce sync.Once
	drop     chan struct{}

	mu     sync.Mutex
	closes int
}

func (p *fakePeripheral) Characteristics(context.Context) ([]Characteristic, error) {
	if p.charErr != nil {
		return nil, p.charErr
	}
	out := make([]Characteristic, len(p.chars))
	for i, c := range p.chars {
		out[i] = c
	}
	return out, nil
}

func (p *fakePeripheral) Disconnected() <-chan struct{} { return p.drop }

func (p *fakePeripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePeripheral) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *fakePeripheral) peerDrop() {
	p.dropOnce.Do(func() { close(p.drop) })
}

// fakeTransport scripts dial outcomes. Each successful dial builds a fresh
// peripheral through build.
type fakeTransport struct {
	mu          sync.Mutex
	dialErrs    []error
	panicDials  int
	gate        chan struct{}
	stale       bool
	forced      int
	dials       int
	failWrites  int
	blockWrites bool
	peripherals []*fakePeripheral
	build       func(dial int, t *fakeTransport) *fakePeripheral
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{build: defaultPeripheral}
}

func defaultPeripheral(_ int, t *fakeTransport) *fakePeripheral {
	return &fakePeripheral{
		chars: []*fakeCharacteristic{{uuid: DefaultCharacteristicUUID, owner: t}},
		drop:  make(chan struct{}),
	}
}

func (t *fakeTransport) Address() string { return "68:5E:1C:31:9E:4B" }

func (t *fakeTransport) IsConnected(context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stale, nil
}

func (t *fakeTransport) ForceDisconnect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forced++
	t.stale = false
	return nil
}

func (t *fakeTransport) Dial(ctx context.Context) (Peripheral, error) {
	t.mu.Lock()
	t.dials++
	n := t.dials
	var err error
	if len(t.dialErrs) > 0 {
		err = t.dialErrs[0]
		t.dialErrs = t.dialErrs[1:]
	}
	doPanic := t.panicDials > 0
	if doPanic {
		t.panicDials--
	}
	gate := t.gate
	t.mu.Unlock()

	if doPanic {
		panic("fake backend exploded")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	p := t.build(n, t)
	t.mu.Lock()
	t.peripherals = append(t.peripherals, p)
	t.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) takeWriteFailure() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrites > 0 {
		t.failWrites--
		return true
	}
	return false
}

func (t *fakeTransport) writeBlocks() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockWrites
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) peripheral(i int) *fakePeripheral {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.peripherals) {
		return nil
	}
	return t.peripherals[i]
}

func (t *fakeTransport) forcedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forced
}

// testConfig returns a config with delays short enough for tests.
func testConfig() Config {
	return Config{
		ConnectTimeout: time.Second,
		WriteTimeout:   100 * time.Millisecond,
		ReconnectDelay: time.Millisecond,
		SettleDelay:    time.Millisecond,
		MaxFrameRate:   -1,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startLink(t *testing.T, cfg Config, ft *fakeTransport) *Handle {
	t.Helper()
	h, err := Start(context.Background(), cfg, ft)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}
