// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package monitor streams link events to remote observers over TCP. Each
// connection is secured with a Noise_NK handshake, so observers must know
// the server's static public key in advance. After the handshake the
// server pushes one encrypted, length-prefixed JSON Message per event and
// never reads application data from the client.
package monitor

import "errors"

// Sentinel errors for the monitor package.
var (
	// ErrServerNotStarted indicates an operation was attempted before the server was started.
	ErrServerNotStarted = errors.New("monitor: server not started")

	// ErrServerAlreadyStarted indicates Start was called on an already-running server.
	ErrServerAlreadyStarted = errors.New("monitor: server already started")

	// ErrSourceNotConfigured indicates the server was created without an event source.
	ErrSourceNotConfigured = errors.New("monitor: event source not configured")

	// ErrConnectionFailed indicates a TCP connection could not be established or was lost.
	ErrConnectionFailed = errors.New("monitor: connection failed")

	// ErrTimeout indicates an I/O operation exceeded its deadline.
	ErrTimeout = errors.New("monitor: operation timeout")

	// ErrFrameTooLarge indicates a frame exceeds the maximum allowed size.
	ErrFrameTooLarge = errors.New("monitor: frame too large")

	// ErrHandshakeFailed indicates the Noise_NK handshake did not complete successfully.
	ErrHandshakeFailed = errors.New("monitor: handshake failed")

	// ErrInvalidMessage indicates a frame could not be decrypted or parsed.
	ErrInvalidMessage = errors.New("monitor: invalid message")

	// ErrInvalidKey indicates a static key has the wrong size or encoding.
	ErrInvalidKey = errors.New("monitor: invalid key")
)
