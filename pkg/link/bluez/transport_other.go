// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

//go:build !linux

package bluez

import (
	"context"

	"github.com/eagletech/eaglelink/pkg/link"
)

// Transport is unavailable outside Linux.
type Transport struct {
	cfg Config
}

// New validates cfg and returns ErrUnsupportedPlatform.
func New(cfg Config) (*Transport, error) {
	if _, err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	return nil, ErrUnsupportedPlatform
}

// Address returns the configured peer address.
func (t *Transport) Address() string { return t.cfg.Address }

// IsConnected always fails.
func (t *Transport) IsConnected(context.Context) (bool, error) {
	return false, ErrUnsupportedPlatform
}

// ForceDisconnect always fails.
func (t *Transport) ForceDisconnect(context.Context) error {
	return ErrUnsupportedPlatform
}

// Dial always fails.
func (t *Transport) Dial(context.Context) (link.Peripheral, error) {
	return nil, ErrUnsupportedPlatform
}

var _ link.Transport = (*Transport)(nil)
