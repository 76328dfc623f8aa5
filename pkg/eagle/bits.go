// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

// bitWriter packs values LSB-first into a fixed buffer. Bit i of the stream
// lands in byte i/8 at position i%8.
type bitWriter struct {
	buf []byte
	pos int
}

func newBitWriter(size int) *bitWriter {
	return &bitWriter{buf: make([]byte, size)}
}

// put appends the low width bits of v. Higher bits are discarded, which is
// where field wraparound happens.
func (w *bitWriter) put(v uint64, width int) {
	for i := 0; i < width; i++ {
		if v>>uint(i)&1 == 1 {
			w.buf[w.pos>>3] |= 1 << uint(w.pos&7)
		}
		w.pos++
	}
}

func (w *bitWriter) putBool(b bool) {
	if b {
		w.put(1, 1)
		return
	}
	w.put(0, 1)
}

// pad advances to the next byte boundary.
func (w *bitWriter) pad() {
	for w.pos&7 != 0 {
		w.pos++
	}
}

// bitReader is the inverse of bitWriter.
type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) get(width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		if r.buf[r.pos>>3]>>uint(r.pos&7)&1 == 1 {
			v |= 1 << uint(i)
		}
		r.pos++
	}
	return v
}

func (r *bitReader) getBool() bool {
	return r.get(1) == 1
}

func (r *bitReader) pad() {
	for r.pos&7 != 0 {
		r.pos++
	}
}

// mask keeps the low width bits of a signed value, i.e. v mod 2^width.
func mask(v int64, width int) uint64 {
	return uint64(v) & (1<<uint(width) - 1)
}
