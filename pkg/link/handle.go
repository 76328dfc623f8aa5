// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/eagletech/eaglelink/pkg/eagle"
	"github.com/eagletech/eaglelink/pkg/linebuf"
	"github.com/eagletech/eaglelink/pkg/mailbox"
)

// Handle is the caller's side of a running link manager. All methods are
// safe for concurrent use and none of them wait on the radio.
type Handle struct {
	m        *manager
	registry *prometheus.Registry
	cancel   context.CancelFunc
	done     chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// Status is a point-in-time summary of the link.
type Status struct {
	Peer             string          `json:"peer"`
	State            ConnectionState `json:"state"`
	ChunkSize        int             `json:"chunk_size"`
	ConnectAttempts  uint64          `json:"connect_attempts"`
	ConnectFailures  uint64          `json:"connect_failures"`
	FramesSent       uint64          `json:"frames_sent"`
	FramesFailed     uint64          `json:"frames_failed"`
	FramesSuperseded uint64          `json:"frames_superseded"`
	BytesSent        uint64          `json:"bytes_sent"`
	LinesDropped     uint64          `json:"lines_dropped"`
	FramePending     bool            `json:"frame_pending"`
	LastSent         time.Time       `json:"last_sent,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
}

// Start validates cfg and launches the manager goroutine. The manager runs
// until ctx is cancelled or Close is called.
func Start(ctx context.Context, cfg Config, t Transport) (*Handle, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	m := &manager{
		cfg:       cfg,
		transport: t,
		mbox:      mailbox.New(),
		bus:       newEventBus(),
		tracer:    tracer,
		logger:    cfg.Logger.With("component", "link"),
	}
	m.lines = linebuf.New(linebuf.Options{
		MaxLines:   cfg.MaxLines,
		MaxPartial: cfg.MaxPartial,
		OnLine:     m.onLine,
	})
	m.metrics = newMetrics(reg, func() float64 { return float64(m.mbox.Dropped()) })
	if cfg.MaxFrameRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.MaxFrameRate), 1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		m:        m,
		registry: reg,
		cancel:   cancel,
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer m.bus.close()
		m.run(runCtx)
	}()

	return h, nil
}

// Send hands frame to the manager, replacing any frame not yet
// transmitted. It returns immediately whatever the link state.
func (h *Handle) Send(frame []byte) error {
	if len(frame) != eagle.FrameLen {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidFrame, eagle.FrameLen, len(frame))
	}
	if h.isClosed() {
		return ErrClosed
	}
	h.m.mbox.Set(frame)
	return nil
}

// SendSnapshot encodes s and sends the resulting frame.
func (h *Handle) SendSnapshot(s *eagle.WorldSnapshot) error {
	frame, err := eagle.EncodeFrame(s)
	if err != nil {
		return err
	}
	return h.Send(frame)
}

// DrainLines returns and clears every line received since the last call.
func (h *Handle) DrainLines() []linebuf.Entry {
	return h.m.lines.Drain()
}

// Lines returns the buffered lines without clearing them.
func (h *Handle) Lines() []linebuf.Entry {
	return h.m.lines.Snapshot()
}

// State returns the current connection state.
func (h *Handle) State() ConnectionState {
	return h.m.State()
}

// Err returns nil while connected, ErrLinkUnavailable otherwise and
// ErrClosed after Close.
func (h *Handle) Err() error {
	if h.isClosed() {
		return ErrClosed
	}
	if h.m.State() != Connected {
		return ErrLinkUnavailable
	}
	return nil
}

// LastFrame returns a copy of the most recently transmitted frame, or nil.
func (h *Handle) LastFrame() []byte {
	frame, _ := h.m.lastTransmitted()
	if frame == nil {
		return nil
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	return out
}

// Status returns a summary of counters and state.
func (h *Handle) Status() Status {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Peer:             m.transport.Address(),
		State:            m.State(),
		ChunkSize:        int(m.chunk.Load()),
		ConnectAttempts:  m.connectAttempts,
		ConnectFailures:  m.connectFailures,
		FramesSent:       m.framesSent,
		FramesFailed:     m.framesFailed,
		FramesSuperseded: m.mbox.Dropped(),
		BytesSent:        m.bytesSent,
		LinesDropped:     m.lines.Dropped(),
		FramePending:     m.mbox.Pending(),
		LastSent:         m.lastSent,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Subscribe returns a channel of link events and a function that cancels
// the subscription. The channel is closed on cancel or when the manager
// stops. Events are dropped when the channel is full.
func (h *Handle) Subscribe(buffer int) (<-chan Event, func()) {
	return h.m.bus.subscribe(buffer)
}

// Registry returns the registry holding the link metrics.
func (h *Handle) Registry() *prometheus.Registry {
	return h.registry
}

// Done is closed once the manager goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close stops the manager and waits for it to release the peripheral.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.cancel()
	})
	<-h.done
	return nil
}

func (h *Handle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}
