// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/eagletech/eaglelink/pkg/linebuf"
	"github.com/eagletech/eaglelink/pkg/mailbox"
)

// errPanic marks errors recovered from a backend panic.
var errPanic = errors.New("panic")

// manager runs the connection state machine. Everything below run is
// executed by a single goroutine; only the mailbox, the line buffer, the
// event bus and the fields guarded by mu are shared with callers.
type manager struct {
	cfg       Config
	transport Transport
	mbox      *mailbox.Mailbox
	lines     *linebuf.Buffer
	bus       *eventBus
	metrics   *metrics
	limiter   *rate.Limiter
	tracer    trace.Tracer
	logger    *slog.Logger

	state atomic.Int32
	chunk atomic.Int64

	mu              sync.Mutex
	lastFrame       []byte
	lastSent        time.Time
	lastErr         error
	connectAttempts uint64
	connectFailures uint64
	framesSent      uint64
	framesFailed    uint64
	bytesSent       uint64
}

// run loops until ctx is cancelled: connect, serve until the link breaks,
// wait ReconnectDelay, repeat.
func (m *manager) run(ctx context.Context) {
	m.logger.Info("link manager started",
		"peer", m.transport.Address(),
		"write_uuid", m.cfg.WriteUUID,
		"notify_uuid", m.cfg.NotifyUUID)

	for {
		err := m.session(ctx)
		m.setState(Disconnected)

		if ctx.Err() != nil {
			m.logger.Info("link manager stopped")
			return
		}
		if err != nil {
			m.setLastErr(err)
		}
		m.logger.Info("reconnecting", "delay", m.cfg.ReconnectDelay, "error", err)

		if err := sleep(ctx, m.cfg.ReconnectDelay); err != nil {
			m.logger.Info("link manager stopped")
			return
		}
	}
}

// session performs one connect/serve cycle. Panics raised by the backend
// are converted into errors so the loop keeps running.
func (m *manager) session(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %w: %v", ErrTransportFailure, errPanic, r)
			m.logger.Error("recovered panic in link session", "panic", r)
			if m.State() == Connecting {
				m.recordConnectFailure(err)
			}
		}
	}()

	m.setState(Connecting)

	p, write, chunk, err := m.connect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.recordConnectFailure(err)
		}
		return err
	}
	defer m.release(p)

	m.chunk.Store(int64(chunk))
	m.metrics.chunkSize.Set(float64(chunk))
	m.setState(Connected)
	m.logger.Info("connected", "peer", m.transport.Address(), "chunk_size", chunk)

	err = m.serve(ctx, p, write, chunk)
	if err != nil && ctx.Err() == nil {
		m.logger.Warn("link lost", "error", err)
	}
	return err
}

// connect brings up a peripheral ready for writing. On success the caller
// owns the returned peripheral; on any failure, panics included, it has
// already been released.
func (m *manager) connect(ctx context.Context) (p Peripheral, write Characteristic, chunk int, err error) {
	ctx, span := m.tracer.Start(ctx, "link.connect",
		trace.WithAttributes(attribute.String("peer", m.transport.Address())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m.metrics.connectAttempts.Inc()
	m.mu.Lock()
	m.connectAttempts++
	m.mu.Unlock()

	m.logger.Info("connecting", "peer", m.transport.Address())

	if err := m.clearStale(ctx); err != nil {
		return nil, nil, 0, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	periph, err := m.transport.Dial(dialCtx)
	if err != nil {
		return nil, nil, 0, classify(dialCtx, ErrConnectTimeout, "dial", err)
	}

	// The named result is nil on failure returns, so release the local.
	ok := false
	defer func() {
		if !ok {
			m.release(periph)
		}
	}()

	chars, err := periph.Characteristics(dialCtx)
	if err != nil {
		return nil, nil, 0, classify(dialCtx, ErrConnectTimeout, "discover characteristics", err)
	}
	for _, c := range chars {
		m.logger.Debug("characteristic", "uuid", c.UUID())
	}

	write = findCharacteristic(chars, m.cfg.WriteUUID)
	if write == nil {
		return nil, nil, 0, fmt.Errorf("%w: write %s", ErrCharacteristicNotFound, m.cfg.WriteUUID)
	}
	notify := findCharacteristic(chars, m.cfg.NotifyUUID)
	if notify == nil {
		return nil, nil, 0, fmt.Errorf("%w: notify %s", ErrCharacteristicNotFound, m.cfg.NotifyUUID)
	}

	if err := notify.Subscribe(m.lines.Append); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: subscribe: %v", ErrTransportFailure, err)
	}

	chunk = m.cfg.FallbackChunkSize
	if n, reported := write.MaxWriteSize(); reported && n > 0 {
		chunk = n
	}
	span.SetAttributes(attribute.Int("chunk_size", chunk))

	ok = true
	return periph, write, chunk, nil
}

// clearStale forces down a connection the platform still holds to the peer
// and waits for the stack to settle.
func (m *manager) clearStale(ctx context.Context) error {
	connected, err := m.transport.IsConnected(ctx)
	if err != nil {
		m.logger.Debug("stale connection check failed", "error", err)
		return nil
	}
	if !connected {
		return nil
	}

	m.logger.Info("forcing stale connection down", "peer", m.transport.Address())
	if err := m.transport.ForceDisconnect(ctx); err != nil {
		m.logger.Warn("force disconnect failed", "error", err)
	}
	return sleep(ctx, m.cfg.SettleDelay)
}

// serve transmits frames until the link fails, the peer drops or ctx is
// cancelled.
func (m *manager) serve(ctx context.Context, p Peripheral, write Characteristic, chunk int) error {
	var keepalive <-chan time.Time
	if m.cfg.KeepaliveInterval > 0 {
		ticker := time.NewTicker(m.cfg.KeepaliveInterval)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-p.Disconnected():
			return ErrPeerDisconnected

		case <-m.mbox.Ready():
			if m.limiter != nil {
				if err := m.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			if err := m.sendPending(ctx, write, chunk); err != nil {
				return err
			}

		case <-keepalive:
			frame, last := m.lastTransmitted()
			if frame == nil || time.Since(last) < m.cfg.KeepaliveInterval {
				continue
			}
			m.logger.Debug("keepalive resend", "bytes", len(frame))
			if err := m.transmit(ctx, write, chunk, frame); err != nil {
				return err
			}
		}
	}
}

// sendPending transmits the mailbox frame, if any. The mailbox is released
// on every exit path so a panicking backend cannot wedge it.
func (m *manager) sendPending(ctx context.Context, write Characteristic, chunk int) error {
	frame, ok := m.mbox.TryTake()
	if !ok {
		return nil
	}
	defer m.mbox.Done()
	return m.transmit(ctx, write, chunk, frame)
}

// transmit writes frame as sequential chunks, each bounded by WriteTimeout.
func (m *manager) transmit(ctx context.Context, write Characteristic, chunk int, frame []byte) (err error) {
	ctx, span := m.tracer.Start(ctx, "link.send", trace.WithAttributes(
		attribute.Int("bytes", len(frame)),
		attribute.Int("chunk_size", chunk),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for off := 0; off < len(frame); off += chunk {
		end := min(off+chunk, len(frame))

		wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
		werr := write.WriteWithoutResponse(wctx, frame[off:end])
		if werr != nil {
			werr = classify(wctx, ErrWriteTimeout, "write", werr)
		}
		cancel()

		if werr != nil {
			m.metrics.framesFailed.Inc()
			m.mu.Lock()
			m.framesFailed++
			m.mu.Unlock()
			m.logger.Warn("send failed", "offset", off, "error", werr)
			m.bus.publish(Event{
				Type:  EventSendFailed,
				Time:  time.Now(),
				State: m.State(),
				Bytes: len(frame),
				Error: werr.Error(),
			})
			return werr
		}
	}

	elapsed := time.Since(start)
	m.metrics.framesSent.Inc()
	m.metrics.bytesSent.Add(float64(len(frame)))
	m.metrics.sendDuration.Observe(elapsed.Seconds())

	now := time.Now()
	m.mu.Lock()
	m.framesSent++
	m.bytesSent += uint64(len(frame))
	m.lastFrame = frame
	m.lastSent = now
	m.mu.Unlock()

	m.logger.Debug("frame sent", "bytes", len(frame), "chunk_size", chunk, "elapsed", elapsed)
	m.bus.publish(Event{Type: EventFrameSent, Time: now, State: Connected, Bytes: len(frame)})
	return nil
}

// release closes p, logging rather than propagating any error.
func (m *manager) release(p Peripheral) {
	if err := p.Close(); err != nil {
		m.logger.Debug("disconnect failed", "error", err)
	}
	m.chunk.Store(0)
	m.metrics.chunkSize.Set(0)
}

// onLine is the line buffer hook.
func (m *manager) onLine(e linebuf.Entry) {
	m.metrics.rxLines.WithLabelValues(e.Kind.String()).Inc()

	ev := Event{Time: e.Time, State: m.State(), Text: e.Text}
	if e.Kind == linebuf.KindHex {
		ev.Type = EventHexLine
		m.logger.Warn("rx binary", "hex", e.Text)
	} else {
		ev.Type = EventLine
		m.logger.Info("rx", "line", e.Text)
	}
	m.bus.publish(ev)
}

func (m *manager) setState(s ConnectionState) {
	if ConnectionState(m.state.Swap(int32(s))) == s {
		return
	}
	m.metrics.state.Set(float64(s))
	m.bus.publish(Event{Type: EventStateChanged, Time: time.Now(), State: s})
}

// State returns the current connection state.
func (m *manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

func (m *manager) recordConnectFailure(err error) {
	reason := reasonTransport
	switch {
	case errors.Is(err, ErrConnectTimeout):
		reason = reasonTimeout
	case errors.Is(err, ErrCharacteristicNotFound):
		reason = reasonNotFound
	case errors.Is(err, errPanic):
		reason = reasonPanic
	}
	m.metrics.connectFailures.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.connectFailures++
	m.mu.Unlock()

	m.logger.Warn("connect failed", "peer", m.transport.Address(), "reason", reason, "error", err)
}

func (m *manager) setLastErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

func (m *manager) lastTransmitted() ([]byte, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFrame, m.lastSent
}

// findCharacteristic returns the characteristic matching uuid, or nil.
func findCharacteristic(chars []Characteristic, uuid string) Characteristic {
	for _, c := range chars {
		if sameUUID(c.UUID(), uuid) {
			return c
		}
	}
	return nil
}

// classify wraps err with timeout when ctx expired during the operation
// and with ErrTransportFailure otherwise. Errors that already carry a link
// sentinel are returned unchanged.
func classify(ctx context.Context, timeout error, op string, err error) error {
	switch {
	case errors.Is(err, ErrTransportFailure), errors.Is(err, ErrConnectTimeout),
		errors.Is(err, ErrWriteTimeout), errors.Is(err, ErrPeerDisconnected):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", timeout, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransportFailure, op, err)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
