// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eagletech/eaglelink/pkg/link"
	"github.com/eagletech/eaglelink/pkg/link/linktest"
	"github.com/eagletech/eaglelink/pkg/monitor"
)

// syncBuffer is a bytes.Buffer safe to write from one goroutine while the
// test reads from another.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startLinkForTest(t *testing.T, transport *linktest.Transport) *link.Handle {
	t.Helper()
	h, err := link.Start(context.Background(), link.Config{
		ReconnectDelay: 10 * time.Millisecond,
		SettleDelay:    time.Millisecond,
		MaxFrameRate:   -1,
		Logger:         quietLogger(),
	}, transport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func startMonitorForTest(t *testing.T, src monitor.EventSource) (*monitor.Server, []byte) {
	t.Helper()
	key, err := monitor.GenerateStaticKey()
	require.NoError(t, err)

	srv, err := monitor.NewServer(&monitor.ServerConfig{
		ListenAddr: "127.0.0.1:0",
		StaticKey:  key,
		Source:     src,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, key.Public
}

func TestWatchMonitor_StreamsJSON(t *testing.T) {
	withFormat(t, "json")

	transport := linktest.NewTransport("68:5E:1C:26:76:7C")
	h := startLinkForTest(t, transport)
	srv, pub := startMonitorForTest(t, h)

	require.Eventually(t, func() bool {
		return h.State() == link.Connected
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- watchMonitor(ctx, srv.Addr().String(), pub, &out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"seq":0`)
	}, 2*time.Second, 5*time.Millisecond, "greeting should arrive first")

	require.NoError(t, h.Send(testPatternFrame()))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"type":"frame_sent"`)
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean exit")
	case <-time.After(5 * time.Second):
		t.Fatal("watchMonitor did not return after cancel")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var first monitor.Message
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, uint64(0), first.Seq)
	assert.Equal(t, link.EventStateChanged, first.Type)
	assert.Equal(t, link.Connected, first.State)
}

func TestWatchMonitor_WrongKey(t *testing.T) {
	transport := linktest.NewTransport("68:5E:1C:26:76:7C")
	h := startLinkForTest(t, transport)
	srv, _ := startMonitorForTest(t, h)

	other, err := monitor.GenerateStaticKey()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = watchMonitor(ctx, srv.Addr().String(), other.Public, io.Discard)
	assert.ErrorIs(t, err, ErrMonitorFailed)
}

func TestWatchMonitor_InvalidKey(t *testing.T) {
	err := watchMonitor(context.Background(), "127.0.0.1:1", []byte{1, 2, 3}, io.Discard)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunMonitor_FlagValidation(t *testing.T) {
	defer func() {
		monitorServerAddr = ""
		monitorServerKey = ""
	}()

	monitorServerAddr, monitorServerKey = "", "00"
	assert.ErrorIs(t, runMonitor(monitorCmd, nil), ErrInvalidInput)

	monitorServerAddr, monitorServerKey = "127.0.0.1:8471", ""
	assert.ErrorIs(t, runMonitor(monitorCmd, nil), ErrInvalidInput)

	monitorServerKey = "zz"
	assert.ErrorIs(t, runMonitor(monitorCmd, nil), ErrInvalidInput)

	withFormat(t, "yaml")
	monitorServerKey = strings.Repeat("ab", 32)
	assert.ErrorIs(t, runMonitor(monitorCmd, nil), ErrInvalidInput)
}

func TestPrintMessage_Text(t *testing.T) {
	ts := time.Date(2026, 5, 17, 14, 3, 9, 0, time.UTC)

	tests := []struct {
		name string
		msg  monitor.Message
		want string
	}{
		{
			name: "state",
			msg: monitor.Message{Seq: 0, Event: link.Event{
				Type: link.EventStateChanged, Time: ts, State: link.Connecting,
			}},
			want: "14:03:09 #0 state        state=connecting\n",
		},
		{
			name: "frame sent",
			msg: monitor.Message{Seq: 4, Event: link.Event{
				Type: link.EventFrameSent, Time: ts, State: link.Connected, Bytes: 130,
			}},
			want: "14:03:09 #4 frame_sent   state=connected bytes=130\n",
		},
		{
			name: "line",
			msg: monitor.Message{Seq: 5, Event: link.Event{
				Type: link.EventLine, Time: ts, State: link.Connected, Text: "pos 12 40",
			}},
			want: "14:03:09 #5 line         state=connected text=\"pos 12 40\"\n",
		},
		{
			name: "send failed",
			msg: monitor.Message{Seq: 6, Event: link.Event{
				Type: link.EventSendFailed, Time: ts, State: link.Disconnected, Error: "timeout",
			}},
			want: "14:03:09 #6 send_failed  state=disconnected error=\"timeout\"\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, printMessage(&out, &tt.msg))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestPrintMessage_JSON(t *testing.T) {
	withFormat(t, "json")

	var out bytes.Buffer
	msg := &monitor.Message{Seq: 9, Event: link.Event{
		Type: link.EventHexLine, Time: time.Unix(0, 0).UTC(), State: link.Connected, Text: "deadbeef",
	}}
	require.NoError(t, printMessage(&out, msg))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, float64(9), got["seq"])
	assert.Equal(t, "hex_line", got["type"])
	assert.Equal(t, "connected", got["state"])
	assert.Equal(t, "deadbeef", got["text"])
}
