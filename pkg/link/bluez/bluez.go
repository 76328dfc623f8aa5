// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package bluez implements link.Transport on Linux using the BlueZ stack,
// through tinygo.org/x/bluetooth for GATT and the BlueZ D-Bus API for
// connection housekeeping.
package bluez

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Default configuration values.
const (
	// DefaultAdapter is the HCI adapter used when none is configured.
	DefaultAdapter = "hci0"

	// DefaultPollInterval is how often the Connected property is polled to
	// detect a peer drop.
	DefaultPollInterval = 500 * time.Millisecond

	// attOverhead is subtracted from the MTU to get the write payload size.
	attOverhead = 3

	bluezService   = "org.bluez"
	deviceIface    = "org.bluez.Device1"
	connectedProp  = deviceIface + ".Connected"
	disconnectCall = deviceIface + ".Disconnect"
)

// Sentinel errors for the bluez package.
var (
	// ErrUnsupportedPlatform indicates the backend was built for a platform
	// without BlueZ.
	ErrUnsupportedPlatform = errors.New("bluez: unsupported platform")

	// ErrInvalidAddress indicates the peer address is not a MAC address.
	ErrInvalidAddress = errors.New("bluez: invalid address")

	// ErrAdapter indicates the HCI adapter could not be enabled.
	ErrAdapter = errors.New("bluez: adapter unavailable")
)

// Config configures the BlueZ transport.
type Config struct {
	// Address is the peer MAC address, e.g. "68:5E:1C:31:9E:4B".
	Address string

	// Adapter is the HCI adapter name. Empty selects DefaultAdapter.
	Adapter string

	// PollInterval controls peer-drop detection. Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration

	// Logger is the structured logger for the transport. If nil,
	// slog.Default is used.
	Logger *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	mac, err := normalizeMAC(c.Address)
	if err != nil {
		return c, err
	}
	c.Address = mac
	if c.Adapter == "" {
		c.Adapter = DefaultAdapter
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// normalizeMAC validates a 6-byte MAC address and returns it in the
// uppercase colon form BlueZ uses.
func normalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToUpper(hw.String()), nil
}

// devicePath returns the BlueZ object path of a device on an adapter.
func devicePath(adapter, mac string) string {
	return "/org/bluez/" + adapter + "/dev_" + strings.ReplaceAll(mac, ":", "_")
}
