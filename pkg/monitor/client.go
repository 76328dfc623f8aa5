// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
)

// Client receives the event stream from a monitor server.
type Client struct {
	mu         sync.Mutex
	config     *ClientConfig
	conn       net.Conn
	recvCipher *noise.CipherState
	logger     *slog.Logger
}

// NewClient creates a client. ServerStaticKey must be a 32-byte
// Curve25519 public key.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if len(cfg.ServerStaticKey) != KeySize {
		return nil, fmt.Errorf("%w: server static key must be %d bytes, got %d",
			ErrHandshakeFailed, KeySize, len(cfg.ServerStaticKey))
	}

	c := *cfg
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultReadTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Client{
		config: &c,
		logger: c.Logger,
	}, nil
}

// Connect dials the server and performs the NK handshake as initiator.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.ServerAddr)
	if err != nil {
		return fmt.Errorf("%w: dial: %w", ErrConnectionFailed, err)
	}

	recv, err := c.handshake(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.recvCipher = recv
	c.mu.Unlock()

	c.logger.Debug("handshake complete", "server", c.config.ServerAddr)
	return nil
}

// Next blocks until the server sends the next message or ctx ends. Next
// must not be called concurrently.
func (c *Client) Next(ctx context.Context) (*Message, error) {
	c.mu.Lock()
	conn, recv := c.conn, c.recvCipher
	c.mu.Unlock()
	if conn == nil || recv == nil {
		return nil, ErrConnectionFailed
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, deadlineError("set read deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	ciphertext, err := readFrame(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("monitor: read event: %w", err)
	}

	plaintext, err := recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %w", ErrInvalidMessage, err)
	}

	var msg Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// Close shuts down the connection. It is safe to call multiple times and
// unblocks a pending Next.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.recvCipher = nil
	return err
}

// handshake executes the NK pattern as initiator and returns the cipher
// for server-to-client traffic.
func (c *Client) handshake(ctx context.Context, conn net.Conn) (*noise.CipherState, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     noise.HandshakeNK,
		Initiator:   true,
		PeerStatic:  c.config.ServerStaticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init handshake state: %w", ErrHandshakeFailed, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.ConnectTimeout)
	}

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate msg1: %w", ErrHandshakeFailed, err)
	}
	if err := WriteFrame(conn, msg1, deadline); err != nil {
		return nil, fmt.Errorf("%w: send msg1: %w", ErrHandshakeFailed, err)
	}

	msg2, err := ReadFrame(conn, deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: read msg2: %w", ErrHandshakeFailed, err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, fmt.Errorf("%w: process msg2: %w", ErrHandshakeFailed, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("%w: handshake did not complete", ErrHandshakeFailed)
	}

	// For the initiator cs2 carries responder-to-initiator traffic.
	return cs2, nil
}
