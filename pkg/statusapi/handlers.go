// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package statusapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eagletech/eaglelink/pkg/eagle"
)

// FrameResponse is the body of GET /api/v1/frame.
type FrameResponse struct {
	Hex         string         `json:"hex"`
	Snapshot    *eagle.Decoded `json:"snapshot,omitempty"`
	DecodeError string         `json:"decode_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.src.Status())
}

// handleFrame returns the last transmitted frame. Frames that are not
// eagle packets (such as bench test patterns) are reported with a
// decode error alongside the raw bytes.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.src.LastFrame()
	if frame == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no frame transmitted yet"})
		return
	}

	resp := FrameResponse{Hex: hex.EncodeToString(frame)}
	decoded, err := eagle.Decode(frame)
	if err != nil {
		resp.DecodeError = err.Error()
	} else {
		resp.Snapshot = decoded
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleLines returns buffered lines without draining them. An optional
// limit query parameter keeps only the newest entries.
func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	lines := s.src.Lines()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(lines) {
			lines = lines[len(lines)-limit:]
		}
	}
	s.writeJSON(w, http.StatusOK, lines)
}

// handleEvents upgrades to a WebSocket and forwards link events as JSON
// text messages until the client goes away or the server stops.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	if !s.beginStream() {
		return
	}
	defer s.streams.Done()

	events, cancel := s.src.Subscribe(s.cfg.EventBuffer)
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(time.Second))
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}
