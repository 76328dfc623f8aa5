// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package linktest provides an in-memory link.Transport for tests and
// bench runs without a Bluetooth controller. The fake peer exposes a
// single write/notify characteristic, records every chunk written to it
// and lets the test inject notifications and connection drops.
package linktest

import (
	"context"
	"errors"
	"sync"

	"github.com/eagletech/eaglelink/pkg/link"
)

// CharacteristicUUID is the full form of the default characteristic.
const CharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"

// ErrDialRefused is returned by Dial while failures are pending.
var ErrDialRefused = errors.New("linktest: dial refused")

// Transport is a fake peer. The zero value is not usable; call NewTransport.
type Transport struct {
	addr string

	mu        sync.Mutex
	maxWrite  int
	failDials int
	dials     int
	written   []byte
	chunks    int
	current   *Peripheral
}

// NewTransport returns a fake peer at addr that accepts every dial.
func NewTransport(addr string) *Transport {
	return &Transport{addr: addr}
}

// SetMaxWrite makes the characteristic report n as its write size. Zero
// leaves it unreported so the link falls back to its default chunk size.
func (t *Transport) SetMaxWrite(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxWrite = n
}

// FailDials makes the next n dials fail with ErrDialRefused.
func (t *Transport) FailDials(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failDials = n
}

// Dials returns how many times Dial was called.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Written returns every byte written so far, across connections.
func (t *Transport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.written))
	copy(out, t.written)
	return out
}

// Chunks returns how many writes were made.
func (t *Transport) Chunks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks
}

// Notify delivers data to the subscriber of the current connection. It
// reports false when nothing is subscribed.
func (t *Transport) Notify(data []byte) bool {
	t.mu.Lock()
	p := t.current
	t.mu.Unlock()
	if p == nil {
		return false
	}
	return p.char.deliver(data)
}

// Drop simulates the peer going away on the current connection.
func (t *Transport) Drop() {
	t.mu.Lock()
	p := t.current
	t.mu.Unlock()
	if p != nil {
		p.dropOnce.Do(func() { close(p.drop) })
	}
}

// Address implements link.Transport.
func (t *Transport) Address() string {
	return t.addr
}

// IsConnected implements link.Transport. The fake never holds a stale
// connection.
func (t *Transport) IsConnected(ctx context.Context) (bool, error) {
	return false, nil
}

// ForceDisconnect implements link.Transport.
func (t *Transport) ForceDisconnect(ctx context.Context) error {
	return nil
}

// Dial implements link.Transport.
func (t *Transport) Dial(ctx context.Context) (link.Peripheral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.dials++
	if t.failDials > 0 {
		t.failDials--
		return nil, ErrDialRefused
	}

	p := &Peripheral{drop: make(chan struct{})}
	p.char = &Characteristic{t: t, maxWrite: t.maxWrite}
	t.current = p
	return p, nil
}

func (t *Transport) record(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, p...)
	t.chunks++
}

// Peripheral is a fake connection.
type Peripheral struct {
	char     *Characteristic
	drop     chan struct{}
	dropOnce sync.Once
	closeMu  sync.Mutex
	closed   bool
}

// Characteristics implements link.Peripheral.
func (p *Peripheral) Characteristics(ctx context.Context) ([]link.Characteristic, error) {
	return []link.Characteristic{p.char}, nil
}

// Disconnected implements link.Peripheral.
func (p *Peripheral) Disconnected() <-chan struct{} {
	return p.drop
}

// Close implements link.Peripheral.
func (p *Peripheral) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether the link released this connection.
func (p *Peripheral) Closed() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed
}

// Characteristic is the fake write/notify characteristic.
type Characteristic struct {
	t        *Transport
	maxWrite int

	mu     sync.Mutex
	notify func([]byte)
}

// UUID implements link.Characteristic.
func (c *Characteristic) UUID() string {
	return CharacteristicUUID
}

// WriteWithoutResponse implements link.Characteristic.
func (c *Characteristic) WriteWithoutResponse(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.t.record(p)
	return nil
}

// Subscribe implements link.Characteristic.
func (c *Characteristic) Subscribe(fn func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
	return nil
}

// MaxWriteSize implements link.Characteristic.
func (c *Characteristic) MaxWriteSize() (int, bool) {
	return c.maxWrite, c.maxWrite > 0
}

func (c *Characteristic) deliver(data []byte) bool {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(data)
	return true
}

var (
	_ link.Transport      = (*Transport)(nil)
	_ link.Peripheral     = (*Peripheral)(nil)
	_ link.Characteristic = (*Characteristic)(nil)
)
