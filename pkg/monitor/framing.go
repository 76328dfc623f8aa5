// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package monitor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// WriteFrame writes a 2-byte big-endian length-prefixed frame to the
// connection. The deadline is applied before writing begins.
func WriteFrame(conn net.Conn, data []byte, deadline time.Time) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: size %d exceeds maximum %d",
			ErrFrameTooLarge, len(data), MaxFrameSize)
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return deadlineError("set write deadline", err)
	}

	buf := make([]byte, FrameHeaderSize+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[FrameHeaderSize:], data)

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("%w: write frame: %w", ErrConnectionFailed, err)
	}
	return nil
}

// ReadFrame reads a 2-byte big-endian length-prefixed frame from the
// connection. The deadline is applied before reading begins; a zero
// deadline waits indefinitely. Returns ErrFrameTooLarge if the declared
// length exceeds MaxFrameSize.
func ReadFrame(conn net.Conn, deadline time.Time) ([]byte, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, deadlineError("set read deadline", err)
	}
	return readFrame(conn)
}

// deadlineError classifies a failure to set a deadline. A closed
// connection is a connection failure, anything else a timeout error.
func deadlineError(op string, err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrConnectionFailed, err)
	}

	length := binary.BigEndian.Uint16(header)
	if int(length) > MaxFrameSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds maximum %d",
			ErrFrameTooLarge, length, MaxFrameSize)
	}
	if length == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %w", ErrConnectionFailed, err)
	}
	return payload, nil
}
