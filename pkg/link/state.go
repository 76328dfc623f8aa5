// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import "fmt"

// ConnectionState is the manager's view of the link.
type ConnectionState int

const (
	// Disconnected means no peripheral is held. The manager is either
	// waiting out ReconnectDelay or shutting down.
	Disconnected ConnectionState = iota

	// Connecting means a connection attempt is in progress.
	Connecting

	// Connected means frames can be written and notifications arrive.
	Connected
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	default:
		return fmt.Errorf("link: unknown connection state %q", text)
	}
	return nil
}
