// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package linebuf

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestAppend_JoinsPartialLines(t *testing.T) {
	b := New(Options{Now: fixedClock()})

	b.Append([]byte("abc"))
	if got := b.Drain(); len(got) != 0 {
		t.Fatalf("Drain() after partial = %v, want empty", texts(got))
	}
	if got := b.Partial(); got != "abc" {
		t.Errorf("Partial() = %q, want %q", got, "abc")
	}

	b.Append([]byte("def\n"))
	got := b.Drain()
	if len(got) != 1 || got[0].Text != "abcdef" {
		t.Fatalf("Drain() = %v, want [abcdef]", texts(got))
	}
	if got[0].Kind != KindText {
		t.Errorf("Kind = %v, want text", got[0].Kind)
	}
	if !got[0].Time.Equal(fixedClock()()) {
		t.Errorf("Time = %v, want fixed clock", got[0].Time)
	}
}

func TestAppend_Cleaning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "crlf", in: "hello\r\n", want: []string{"hello"}},
		{name: "multiple lines", in: "a\nb\nc\n", want: []string{"a", "b", "c"}},
		{name: "empty line", in: "\n", want: []string{""}},
		{name: "colour codes", in: "\x1b[31mred\x1b[0m\n", want: []string{"red"}},
		{name: "clear screen", in: "\x1b[2J\x1b[Hready\n", want: []string{"ready"}},
		{name: "cursor move", in: "x\x1b[10;5Hy\n", want: []string{"xy"}},
		{name: "control chars", in: "a\x00b\x07c\n", want: []string{"abc"}},
		{name: "tab kept", in: "k\tv\n", want: []string{"k\tv"}},
		{name: "non ascii replaced", in: "t=\xb025\n", want: []string{"t=�25"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Options{})
			b.Append([]byte(tt.in))
			got := texts(b.Drain())
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppend_HexFallback(t *testing.T) {
	b := New(Options{})
	b.Append([]byte{0x00, 0x01, 0xfe, 0xff})

	got := b.Drain()
	if len(got) != 1 {
		t.Fatalf("Drain() returned %d entries, want 1", len(got))
	}
	if got[0].Kind != KindHex || got[0].Text != "0001feff" {
		t.Errorf("entry = %+v, want hex 0001feff", got[0])
	}
	if b.Partial() != "" {
		t.Errorf("Partial() = %q, binary chunk should not touch it", b.Partial())
	}
}

func TestAppend_MostlyTextIsNotHex(t *testing.T) {
	b := New(Options{})
	b.Append([]byte("ok\x00\n"))

	got := b.Drain()
	if len(got) != 1 || got[0].Kind != KindText || got[0].Text != "ok" {
		t.Errorf("Drain() = %+v, want one text entry %q", got, "ok")
	}
}

func TestAppend_RingOverflow(t *testing.T) {
	b := New(Options{MaxLines: 3})
	for i := 0; i < 5; i++ {
		b.Append([]byte(fmt.Sprintf("line%d\n", i)))
	}

	if got := b.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	got := texts(b.Drain())
	want := []string{"line2", "line3", "line4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Drain() = %v, want %v", got, want)
	}
	if b.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", b.Len())
	}
}

func TestAppend_PartialCap(t *testing.T) {
	b := New(Options{MaxPartial: 8})
	b.Append([]byte("0123456789abcdef"))

	if got := b.Partial(); got != "89abcdef" {
		t.Errorf("Partial() = %q, want %q", got, "89abcdef")
	}

	b.Append([]byte("\n"))
	got := b.Drain()
	if len(got) != 1 || got[0].Text != "89abcdef" {
		t.Errorf("Drain() = %v, want [89abcdef]", texts(got))
	}
}

func TestAppend_LongStreamWithoutNewline(t *testing.T) {
	b := New(Options{})
	for i := 0; i < 100; i++ {
		b.Append([]byte(strings.Repeat(string(rune('a'+i%26)), 1000)))
	}

	got := b.Partial()
	if len(got) != DefaultMaxPartial {
		t.Fatalf("len(Partial()) = %d, want %d", len(got), DefaultMaxPartial)
	}
	// Chunks 95 to 99 are r, s, t, u and v. The cap keeps the newest bytes.
	want := strings.Repeat("r", 96) + strings.Repeat("s", 1000) + strings.Repeat("t", 1000) +
		strings.Repeat("u", 1000) + strings.Repeat("v", 1000)
	if got != want {
		t.Errorf("Partial() kept the wrong bytes: head %q tail %q", got[:4], got[len(got)-4:])
	}
}

func TestAppend_PartialCapWithinChunk(t *testing.T) {
	b := New(Options{MaxPartial: 8})
	b.Append([]byte("0123456789abcdef\nxyz"))

	got := b.Drain()
	if len(got) != 1 || got[0].Text != "89abcdef" {
		t.Errorf("Drain() = %v, want [89abcdef]", texts(got))
	}
	if p := b.Partial(); p != "xyz" {
		t.Errorf("Partial() = %q, want %q", p, "xyz")
	}
}

func TestAppend_OSCTitleStripped(t *testing.T) {
	b := New(Options{})
	b.Append([]byte("\x1b]0;robot\x07up\n"))

	if got := texts(b.Drain()); len(got) != 1 || got[0] != "up" {
		t.Errorf("Drain() = %q, want [up]", got)
	}
}

func TestSnapshot_DoesNotDrain(t *testing.T) {
	b := New(Options{})
	b.Append([]byte("one\ntwo\n"))

	if got := len(b.Snapshot()); got != 2 {
		t.Fatalf("Snapshot() returned %d entries, want 2", got)
	}
	if got := len(b.Drain()); got != 2 {
		t.Errorf("Drain() after Snapshot returned %d entries, want 2", got)
	}
}

func TestOnLine_Hook(t *testing.T) {
	var mu sync.Mutex
	var seen []Entry

	b := New(Options{OnLine: func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
	}})

	b.Append([]byte("a\nb"))
	b.Append([]byte("\n"))
	b.Append([]byte{0xff, 0xfe})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("OnLine called %d times, want 3", len(seen))
	}
	if seen[0].Text != "a" || seen[1].Text != "b" || seen[2].Kind != KindHex {
		t.Errorf("OnLine entries = %+v", seen)
	}
}

func TestDrain_ConcurrentAppend(t *testing.T) {
	b := New(Options{MaxLines: 10000})

	const writers, lines = 4, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < lines; i++ {
				b.Append([]byte("msg\n"))
			}
		}()
	}

	var total int
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			total += len(b.Drain())
			if total != writers*lines {
				t.Errorf("drained %d entries, want %d", total, writers*lines)
			}
			return
		default:
			total += len(b.Drain())
		}
	}
}
