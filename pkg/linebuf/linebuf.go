// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package linebuf turns raw notification bytes from a peripheral into
// clean, timestamped text lines held in a bounded drop-oldest buffer.
package linebuf

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Default bounds.
const (
	// DefaultMaxLines is the number of completed lines retained.
	DefaultMaxLines = 1024

	// DefaultMaxPartial caps an unterminated line in bytes.
	DefaultMaxPartial = 4096

	// binaryThreshold is the share of non-printable bytes at which a chunk
	// is shown as hex instead of text.
	binaryThreshold = 0.5
)

// Kind says how an entry's text was produced.
type Kind uint8

const (
	// KindText is a cleaned line of text.
	KindText Kind = iota

	// KindHex is a hex rendering of a chunk that was mostly binary.
	KindHex
)

// String returns "text" or "hex".
func (k Kind) String() string {
	if k == KindHex {
		return "hex"
	}
	return "text"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Entry is one received line.
type Entry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
	Kind Kind      `json:"kind"`
}

// Options configures a Buffer. Zero values select the defaults.
type Options struct {
	MaxLines   int
	MaxPartial int

	// OnLine, if set, is called for every completed entry outside the
	// buffer lock.
	OnLine func(Entry)

	// Now overrides the clock. Used by tests.
	Now func() time.Time
}

// Buffer accumulates bytes into lines. It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	opts    Options
	partial []byte
	lines   []Entry
	head    int
	count   int
	dropped uint64
}

// New returns a Buffer with opts applied over the defaults.
func New(opts Options) *Buffer {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.MaxPartial <= 0 {
		opts.MaxPartial = DefaultMaxPartial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Buffer{
		opts:  opts,
		lines: make([]Entry, opts.MaxLines),
	}
}

// Append feeds a chunk of raw bytes. Every '\n' completes a line; a
// trailing '\r' is trimmed. Bytes after the last '\n' are kept until the
// next chunk. A chunk that is mostly binary becomes a single hex entry and
// does not touch the partial line.
func (b *Buffer) Append(raw []byte) {
	if len(raw) == 0 {
		return
	}

	var completed []Entry
	now := b.opts.Now()

	b.mu.Lock()
	if isBinary(raw) {
		e := Entry{Time: now, Text: hex.EncodeToString(raw), Kind: KindHex}
		b.push(e)
		completed = append(completed, e)
	} else {
		for _, c := range clean(raw) {
			if c == '\n' {
				b.trimPartial()
				line := strings.TrimSuffix(string(b.partial), "\r")
				b.partial = b.partial[:0]
				e := Entry{Time: now, Text: line, Kind: KindText}
				b.push(e)
				completed = append(completed, e)
				continue
			}
			b.partial = append(b.partial, c)
		}
		b.trimPartial()
	}
	b.mu.Unlock()

	if b.opts.OnLine != nil {
		for _, e := range completed {
			b.opts.OnLine(e)
		}
	}
}

// Drain returns all completed entries, oldest first, and empties the
// buffer. The partial line is kept.
func (b *Buffer) Drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.snapshotLocked()
	b.head = 0
	b.count = 0
	return out
}

// Snapshot returns the completed entries without removing them.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Len returns the number of completed entries held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Partial returns the current unterminated line.
func (b *Buffer) Partial() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.partial)
}

// Dropped returns how many completed entries were evicted unread.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// trimPartial keeps the newest MaxPartial bytes of the partial line.
func (b *Buffer) trimPartial() {
	if over := len(b.partial) - b.opts.MaxPartial; over > 0 {
		b.partial = append(b.partial[:0], b.partial[over:]...)
	}
}

func (b *Buffer) push(e Entry) {
	size := len(b.lines)
	if b.count == size {
		b.lines[b.head] = e
		b.head = (b.head + 1) % size
		b.dropped++
		return
	}
	b.lines[(b.head+b.count)%size] = e
	b.count++
}

func (b *Buffer) snapshotLocked() []Entry {
	out := make([]Entry, b.count)
	for i := range out {
		out[i] = b.lines[(b.head+i)%len(b.lines)]
	}
	return out
}

// clean decodes raw as ASCII, replacing bytes above 0x7f with U+FFFD, and
// strips escape sequences and control characters other than '\n' and '\r'.
func clean(raw []byte) []byte {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, c := range raw {
		if c >= utf8.RuneSelf {
			sb.WriteRune(utf8.RuneError)
			continue
		}
		sb.WriteByte(c)
	}

	stripped := ansi.Strip(sb.String())

	out := make([]byte, 0, len(stripped))
	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' || c == 0x7f {
			continue
		}
		out = append(out, c)
	}
	return out
}

// isBinary reports whether at least half of raw is neither printable ASCII
// nor common whitespace.
func isBinary(raw []byte) bool {
	var n int
	for _, c := range raw {
		switch {
		case c == '\n', c == '\r', c == '\t', c == 0x1b:
		case c >= 0x20 && c < 0x7f:
		default:
			n++
		}
	}
	return float64(n) >= binaryThreshold*float64(len(raw))
}
