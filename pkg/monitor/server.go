// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"

	"github.com/eagletech/eaglelink/pkg/link"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Server accepts observers, completes the NK handshake as responder and
// streams events from the configured source to each of them.
type Server struct {
	config  *ServerConfig
	logger  *slog.Logger
	limiter *observerLimiter
	sem     chan struct{}

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewServer validates cfg and fills in defaults. The listener is not
// opened until Start.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.StaticKey == nil || len(cfg.StaticKey.Private) != KeySize || len(cfg.StaticKey.Public) != KeySize {
		return nil, fmt.Errorf("%w: static key is required", ErrHandshakeFailed)
	}
	if cfg.Source == nil {
		return nil, ErrSourceNotConfigured
	}

	c := *cfg
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Server{
		config: &c,
		logger: c.Logger.With("component", "monitor"),
		sem:    make(chan struct{}, c.MaxConnections),
	}, nil
}

// Start opens the listener and begins accepting observers.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrServerAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", s.config.ListenAddr, err)
	}

	s.listener = ln
	s.conns = make(map[net.Conn]struct{})
	s.quit = make(chan struct{})
	s.limiter = newObserverLimiter(s.config.RateLimit, s.config.RateBurst, observerQuotaStaleAge, observerQuotaSweep)

	s.wg.Add(1)
	go s.acceptLoop(ln, s.quit)

	s.logger.Info("monitor listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every observer connection, then waits for
// the connection goroutines until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil || s.quit == nil {
		s.mu.Unlock()
		return ErrServerNotStarted
	}
	select {
	case <-s.quit:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.quit)
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.limiter.stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("monitor: shutdown: %w", ctx.Err())
	}

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("monitor: close listener: %w", err)
	}
	s.logger.Info("monitor stopped")
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, quit chan struct{}) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		remote := conn.RemoteAddr().String()
		host, _, splitErr := net.SplitHostPort(remote)
		if splitErr != nil {
			host = remote
		}
		if ok, rejected := s.limiter.admit(host); !ok {
			s.logger.Warn("observer rate limited", "remote", remote, "rejected", rejected)
			conn.Close()
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.logger.Warn("max observers reached", "remote", remote, "max", s.config.MaxConnections)
			conn.Close()
			continue
		}

		if !s.track(conn) {
			<-s.sem
			conn.Close()
			return
		}

		s.wg.Add(1)
		go s.serveConn(conn, quit)
	}
}

// track registers conn so Stop can close it. It reports false once the
// server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	<-s.sem
}

func (s *Server) serveConn(conn net.Conn, quit chan struct{}) {
	defer s.wg.Done()
	defer s.untrack(conn)

	logger := s.logger.With("remote", conn.RemoteAddr().String())

	send, err := s.handshake(conn)
	if err != nil {
		logger.Debug("handshake failed", "error", err)
		return
	}

	events, cancel := s.config.Source.Subscribe(s.config.EventBuffer)
	defer cancel()

	logger.Info("observer connected")
	defer logger.Info("observer disconnected")

	// Observers never send after the handshake; a read returning means
	// the peer went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = ReadFrame(conn, time.Time{})
	}()

	var seq uint64
	greeting := link.Event{
		Type:  link.EventStateChanged,
		Time:  time.Now(),
		State: s.config.Source.State(),
	}
	if err := s.writeMessage(conn, send, &Message{Seq: seq, Event: greeting}); err != nil {
		logger.Debug("write failed", "error", err)
		return
	}

	for {
		select {
		case <-quit:
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			seq++
			err := s.writeMessage(conn, send, &Message{Seq: seq, Event: ev})
			if errors.Is(err, ErrFrameTooLarge) {
				// Skipped before anything reached the wire; the gap in
				// seq tells the observer.
				logger.Warn("event too large for observer", "seq", seq, "type", ev.Type)
				continue
			}
			if err != nil {
				logger.Debug("write failed", "error", err)
				return
			}
		}
	}
}

// handshake runs the 2-message NK pattern as responder and returns the
// cipher for server-to-observer traffic.
//
//   - Message 1 (observer -> server): [e, es]
//   - Message 2 (server -> observer): [e, ee]
func (s *Server) handshake(conn net.Conn) (*noise.CipherState, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeNK,
		Initiator:     false,
		StaticKeypair: *s.config.StaticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init handshake state: %w", ErrHandshakeFailed, err)
	}

	msg1, err := ReadFrame(conn, time.Now().Add(s.config.ReadTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: read msg1: %w", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, fmt.Errorf("%w: process msg1: %w", ErrHandshakeFailed, err)
	}

	msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate msg2: %w", ErrHandshakeFailed, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("%w: handshake did not complete", ErrHandshakeFailed)
	}
	if err := WriteFrame(conn, msg2, time.Now().Add(s.config.WriteTimeout)); err != nil {
		return nil, fmt.Errorf("%w: send msg2: %w", ErrHandshakeFailed, err)
	}

	// For the responder cs2 carries responder-to-initiator traffic.
	return cs2, nil
}

func (s *Server) writeMessage(conn net.Conn, send *noise.CipherState, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrInvalidMessage, err)
	}
	// Checked before Encrypt, which advances the nonce.
	if len(data)+aeadTagSize > MaxFrameSize {
		return fmt.Errorf("%w: message of %d bytes", ErrFrameTooLarge, len(data))
	}
	ciphertext, err := send.Encrypt(nil, nil, data)
	if err != nil {
		return fmt.Errorf("%w: encrypt: %w", ErrInvalidMessage, err)
	}
	return WriteFrame(conn, ciphertext, time.Now().Add(s.config.WriteTimeout))
}
