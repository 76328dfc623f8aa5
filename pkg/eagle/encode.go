// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

import "fmt"

// Encode builds the PayloadLen-byte payload for s. Object lists longer than
// MaxObjects are truncated; out-of-range values wrap. Encode returns
// ErrInvalidSnapshot only for snapshots that fail validation.
func Encode(s *WorldSnapshot) ([]byte, error) {
	d, err := Quantize(s)
	if err != nil {
		return nil, err
	}
	return pack(d), nil
}

// EncodeFrame encodes s and frames the resulting payload.
func EncodeFrame(s *WorldSnapshot) ([]byte, error) {
	payload, err := Encode(s)
	if err != nil {
		return nil, err
	}
	return FramePayload(payload)
}

// FramePayload prefixes StartByte and appends the checksum. The payload
// must be exactly PayloadLen bytes.
func FramePayload(payload []byte) ([]byte, error) {
	if len(payload) != PayloadLen {
		return nil, fmt.Errorf("%w: payload must be %d bytes, got %d",
			ErrInvalidPayload, PayloadLen, len(payload))
	}

	frame := make([]byte, 0, FrameLen)
	frame = append(frame, StartByte)
	frame = append(frame, payload...)
	frame = append(frame, Checksum(payload))
	return frame, nil
}

// Checksum returns the sum of the payload bytes modulo 256.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// pack writes an already-quantized view into a zero-padded payload.
func pack(d *Decoded) []byte {
	w := newBitWriter(PayloadLen)

	w.put(uint64(d.Colour), colourBits)
	putRobot(w, d.Self)
	putRobot(w, d.Opponent)
	w.put(uint64(len(d.Objects)), countBits)
	w.put(0, headerPadBits)
	w.pad()

	for _, obj := range d.Objects {
		w.put(uint64(obj.Type), objTypeBits)
		w.put(uint64(obj.RawX), objXBits)
		w.put(uint64(obj.RawY), objYBits)
		w.put(uint64(obj.RawHeading), objHeadingBits)
	}
	return w.buf
}

func putRobot(w *bitWriter, r DecodedRobot) {
	w.putBool(r.Detected)
	w.put(uint64(r.XCM), posXBits)
	w.put(uint64(r.YCM), posYBits)
	w.put(uint64(r.HeadingDeg), headingBits)
}
