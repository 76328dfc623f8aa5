// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package monitor

import (
	"log/slog"
	"time"

	"github.com/flynn/noise"

	"github.com/eagletech/eaglelink/pkg/link"
)

// Default configuration values for the monitor server and client.
const (
	// DefaultListenAddr is the default TCP address the server binds to.
	DefaultListenAddr = ":8471"

	// DefaultMaxConnections is the default maximum number of concurrent observers.
	DefaultMaxConnections = 16

	// DefaultReadTimeout bounds the handshake read.
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds each frame written to an observer.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultEventBuffer is the per-observer event queue length.
	DefaultEventBuffer = 64

	// MaxFrameSize is the maximum payload size for a single length-prefixed
	// frame, on both sides. Handshake messages and encrypted events are far
	// below it; a larger declared length is rejected before allocating.
	MaxFrameSize = 16 * 1024

	// aeadTagSize is the ChaChaPoly authentication tag added to every
	// encrypted message.
	aeadTagSize = 16

	// FrameHeaderSize is the number of bytes used for the big-endian length prefix.
	FrameHeaderSize = 2

	// DefaultRateLimit is the default per-host observer session rate (sessions per second).
	DefaultRateLimit = 10.0

	// DefaultRateBurst is the default per-host observer session burst.
	DefaultRateBurst = 20

	// KeySize is the size of Curve25519 keys in bytes.
	KeySize = 32

	observerQuotaStaleAge = 5 * time.Minute
	observerQuotaSweep    = time.Minute
)

// EventSource publishes link events. *link.Handle satisfies it.
type EventSource interface {
	Subscribe(buffer int) (<-chan link.Event, func())
	State() link.ConnectionState
}

// ServerConfig configures the monitor server.
type ServerConfig struct {
	// ListenAddr is the TCP address to bind the listener to.
	ListenAddr string

	// StaticKey is the server's Curve25519 static key pair. Observers must
	// know the public component to complete the NK handshake.
	StaticKey *noise.DHKey

	// Source supplies the events streamed to every observer.
	Source EventSource

	// MaxConnections limits simultaneous observers. Zero or negative
	// values are replaced with DefaultMaxConnections.
	MaxConnections int

	// ReadTimeout bounds the handshake. Zero is replaced with DefaultReadTimeout.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write. Zero is replaced with DefaultWriteTimeout.
	WriteTimeout time.Duration

	// RateLimit is the per-IP connection rate in connections per second.
	RateLimit float64

	// RateBurst is the per-IP connection burst.
	RateBurst int

	// EventBuffer is the per-observer event queue length. An observer
	// that falls this far behind misses events.
	EventBuffer int

	Logger *slog.Logger
}

// ClientConfig configures a monitor client.
type ClientConfig struct {
	// ServerAddr is the TCP address of the monitor server.
	ServerAddr string

	// ServerStaticKey is the server's 32-byte Curve25519 static public key.
	ServerStaticKey []byte

	// ConnectTimeout bounds the dial and handshake when the context
	// carries no deadline. Zero is replaced with DefaultReadTimeout.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Message is one event as delivered to an observer. Seq starts at zero
// for the greeting that carries the current link state and increases by
// one per message on a connection.
type Message struct {
	Seq uint64 `json:"seq"`
	link.Event
}
