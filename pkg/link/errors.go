// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package link owns the BLE connection to the robot. A single goroutine
// connects, reconnects forever on failure, transmits the most recent frame
// handed to it in MTU-sized chunks and turns notifications from the robot
// into text lines. Callers interact with it only through a Handle, whose
// methods never block on the radio.
package link

import "errors"

// Sentinel errors for the link package.
var (
	// ErrLinkUnavailable indicates the link is not currently connected.
	// Send and DrainLines still succeed while it is reported.
	ErrLinkUnavailable = errors.New("link: not connected")

	// ErrTransportFailure indicates the platform BLE stack reported an error.
	ErrTransportFailure = errors.New("link: transport failure")

	// ErrConnectTimeout indicates connection setup exceeded ConnectTimeout.
	ErrConnectTimeout = errors.New("link: connect timeout")

	// ErrWriteTimeout indicates a chunk write exceeded WriteTimeout.
	ErrWriteTimeout = errors.New("link: write timeout")

	// ErrPeerDisconnected indicates the peripheral dropped the connection.
	ErrPeerDisconnected = errors.New("link: peer disconnected")

	// ErrCharacteristicNotFound indicates a configured UUID is not exposed
	// by the peripheral.
	ErrCharacteristicNotFound = errors.New("link: characteristic not found")

	// ErrInvalidConfig indicates the link configuration is unusable.
	ErrInvalidConfig = errors.New("link: invalid configuration")

	// ErrInvalidFrame indicates Send was given a frame of the wrong size.
	ErrInvalidFrame = errors.New("link: invalid frame")

	// ErrClosed indicates the handle has been closed.
	ErrClosed = errors.New("link: closed")
)
