// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package eagle implements the Eagle telemetry packet shared with the robot
// firmware: a world snapshot bit-packed into a fixed 128-byte payload and
// framed as StartByte | payload | checksum.
//
// The encoding is deliberately lossy. Positions are rounded to whole
// centimetres, headings to whole degrees, and object poses are quantized to
// a handful of bits. Values that do not fit their field wrap modulo 2^bits
// instead of failing, because the firmware decodes the same truncated bits.
package eagle

import "errors"

// Sentinel errors for the eagle package.
var (
	// ErrMalformedFrame indicates a frame with a wrong length, a missing
	// start byte, a checksum mismatch, or an impossible object count.
	ErrMalformedFrame = errors.New("eagle: malformed frame")

	// ErrInvalidPayload indicates a payload that is not exactly PayloadLen bytes.
	ErrInvalidPayload = errors.New("eagle: invalid payload")

	// ErrInvalidSnapshot indicates a snapshot with an obviously invalid shape:
	// nil, unknown colour or object type, or non-finite coordinates.
	ErrInvalidSnapshot = errors.New("eagle: invalid snapshot")
)
