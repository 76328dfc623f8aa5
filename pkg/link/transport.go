// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import "context"

// Transport is the platform BLE stack as seen by the manager. It addresses a
// single configured peripheral.
type Transport interface {
	// Address returns the peer address for logs and status.
	Address() string

	// IsConnected reports whether the platform already holds a connection
	// to the peer, for example one left behind by a crashed process.
	IsConnected(ctx context.Context) (bool, error)

	// ForceDisconnect tears down any platform-level connection to the peer.
	ForceDisconnect(ctx context.Context) error

	// Dial connects to the peer. It must honour ctx cancellation.
	Dial(ctx context.Context) (Peripheral, error)
}

// Peripheral is a connected peer.
type Peripheral interface {
	// Characteristics enumerates the characteristics of every service.
	Characteristics(ctx context.Context) ([]Characteristic, error)

	// Disconnected is closed when the peer drops the connection. Backends
	// that cannot detect this may return nil.
	Disconnected() <-chan struct{}

	// Close disconnects and releases platform resources. It is safe to call
	// more than once.
	Close() error
}

// Characteristic is a GATT characteristic.
type Characteristic interface {
	// UUID returns the characteristic UUID in canonical string form.
	UUID() string

	// WriteWithoutResponse writes p as a single GATT write command.
	WriteWithoutResponse(ctx context.Context, p []byte) error

	// Subscribe enables notifications and calls fn with each payload.
	Subscribe(fn func([]byte)) error

	// MaxWriteSize returns the largest payload a single write may carry,
	// and false if the platform does not report it.
	MaxWriteSize() (int, bool)
}
