// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values for the link manager.
const (
	// DefaultCharacteristicUUID is the serial characteristic of the HM-10
	// style modules on the robot. It is used for both writes and
	// notifications.
	DefaultCharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"

	// DefaultConnectTimeout bounds connection setup.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single chunk write.
	DefaultWriteTimeout = 500 * time.Millisecond

	// DefaultReconnectDelay is the pause between failed attempts.
	DefaultReconnectDelay = 2 * time.Second

	// DefaultSettleDelay is the pause after forcing a stale connection down.
	DefaultSettleDelay = 2 * time.Second

	// DefaultFallbackChunkSize is the chunk size used when the platform does
	// not report a maximum write size. 20 bytes is the BLE 4.0 ATT payload.
	DefaultFallbackChunkSize = 20

	// DefaultMaxFrameRate is the transmission rate bound in frames per
	// second.
	DefaultMaxFrameRate = 20.0

	// DefaultEventBuffer is the per-subscriber event channel capacity.
	DefaultEventBuffer = 64

	// tracerName identifies spans emitted by the manager.
	tracerName = "github.com/eagletech/eaglelink/pkg/link"
)

// Config configures the link manager. It is copied by Start and never
// mutated afterwards.
type Config struct {
	// WriteUUID is the characteristic frames are written to.
	// Empty selects DefaultCharacteristicUUID.
	WriteUUID string

	// NotifyUUID is the characteristic whose notifications become lines.
	// Empty selects DefaultCharacteristicUUID.
	NotifyUUID string

	// ConnectTimeout bounds Dial and characteristic discovery.
	// Zero selects DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each chunk write. Zero selects
	// DefaultWriteTimeout.
	WriteTimeout time.Duration

	// ReconnectDelay is waited after every failure. Zero selects
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// SettleDelay is waited after forcing down a stale platform
	// connection. Zero selects DefaultSettleDelay.
	SettleDelay time.Duration

	// FallbackChunkSize is the chunk size when the platform does not
	// report one. Zero selects DefaultFallbackChunkSize.
	FallbackChunkSize int

	// MaxFrameRate bounds transmissions per second. Zero selects
	// DefaultMaxFrameRate; a negative value disables the bound.
	MaxFrameRate float64

	// KeepaliveInterval, when positive, resends the last frame if nothing
	// new was transmitted for that long.
	KeepaliveInterval time.Duration

	// MaxLines and MaxPartial bound the received line buffer. Zero selects
	// the linebuf defaults.
	MaxLines   int
	MaxPartial int

	// Registry receives the link metrics. If nil, a private registry is
	// created and exposed through Handle.Registry.
	Registry *prometheus.Registry

	// Tracer records connect and send spans. If nil, the global tracer
	// provider is used.
	Tracer trace.Tracer

	// Logger is the structured logger for the manager. If nil,
	// slog.Default is used.
	Logger *slog.Logger
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.WriteUUID == "" {
		c.WriteUUID = DefaultCharacteristicUUID
	}
	if c.NotifyUUID == "" {
		c.NotifyUUID = DefaultCharacteristicUUID
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.FallbackChunkSize == 0 {
		c.FallbackChunkSize = DefaultFallbackChunkSize
	}
	if c.MaxFrameRate == 0 {
		c.MaxFrameRate = DefaultMaxFrameRate
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.ConnectTimeout < 0:
		return fmt.Errorf("%w: connect timeout must not be negative", ErrInvalidConfig)
	case c.WriteTimeout < 0:
		return fmt.Errorf("%w: write timeout must not be negative", ErrInvalidConfig)
	case c.ReconnectDelay < 0:
		return fmt.Errorf("%w: reconnect delay must not be negative", ErrInvalidConfig)
	case c.SettleDelay < 0:
		return fmt.Errorf("%w: settle delay must not be negative", ErrInvalidConfig)
	case c.KeepaliveInterval < 0:
		return fmt.Errorf("%w: keepalive interval must not be negative", ErrInvalidConfig)
	case c.FallbackChunkSize < 0:
		return fmt.Errorf("%w: fallback chunk size must not be negative", ErrInvalidConfig)
	case c.MaxLines < 0 || c.MaxPartial < 0:
		return fmt.Errorf("%w: line buffer bounds must not be negative", ErrInvalidConfig)
	}
	for _, u := range []string{c.WriteUUID, c.NotifyUUID} {
		if u != "" && !validUUID(u) {
			return fmt.Errorf("%w: malformed characteristic UUID %q", ErrInvalidConfig, u)
		}
	}
	return nil
}

// validUUID accepts the canonical 8-4-4-4-12 hex form and the 16-bit short
// form ("ffe1").
func validUUID(s string) bool {
	if len(s) == 4 {
		return isHex(s)
	}
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return false
	}
	for i, want := range [...]int{8, 4, 4, 4, 12} {
		if len(parts[i]) != want || !isHex(parts[i]) {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// sameUUID compares UUIDs case-insensitively, expanding 16-bit short forms
// onto the Bluetooth base UUID.
func sameUUID(a, b string) bool {
	return strings.EqualFold(expandUUID(a), expandUUID(b))
}

func expandUUID(s string) string {
	if len(s) == 4 {
		return "0000" + s + "-0000-1000-8000-00805f9b34fb"
	}
	return s
}
