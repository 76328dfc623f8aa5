// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

import "fmt"

// Decode validates a full frame and unpacks its payload. It returns
// ErrMalformedFrame when the length, start byte or checksum do not match.
// Decoding is lossy by construction: it recovers the quantized wire values,
// never the original floats.
func Decode(frame []byte) (*Decoded, error) {
	if len(frame) != FrameLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrMalformedFrame, FrameLen, len(frame))
	}
	if frame[0] != StartByte {
		return nil, fmt.Errorf("%w: start byte 0x%02x, want 0x%02x",
			ErrMalformedFrame, frame[0], StartByte)
	}

	payload := frame[1 : FrameLen-1]
	if sum := Checksum(payload); sum != frame[FrameLen-1] {
		return nil, fmt.Errorf("%w: checksum 0x%02x, want 0x%02x",
			ErrMalformedFrame, frame[FrameLen-1], sum)
	}

	return DecodePayload(payload)
}

// DecodePayload unpacks a bare payload without frame checks.
func DecodePayload(payload []byte) (*Decoded, error) {
	if len(payload) != PayloadLen {
		return nil, fmt.Errorf("%w: payload must be %d bytes, got %d",
			ErrMalformedFrame, PayloadLen, len(payload))
	}

	r := &bitReader{buf: payload}
	d := &Decoded{}

	d.Colour = Colour(r.get(colourBits))
	d.Self = getRobot(r)
	d.Opponent = getRobot(r)

	count := int(r.get(countBits))
	r.get(headerPadBits)
	r.pad()

	if count > MaxObjects {
		return nil, fmt.Errorf("%w: object count %d exceeds %d",
			ErrMalformedFrame, count, MaxObjects)
	}

	d.Objects = make([]DecodedObject, 0, count)
	for i := 0; i < count; i++ {
		t := ObjectType(r.get(objTypeBits))
		rawX := uint8(r.get(objXBits))
		rawY := uint8(r.get(objYBits))
		rawH := uint8(r.get(objHeadingBits))
		d.Objects = append(d.Objects, expandObject(t, rawX, rawY, rawH))
	}
	return d, nil
}

func getRobot(r *bitReader) DecodedRobot {
	return DecodedRobot{
		Detected:   r.getBool(),
		XCM:        int(r.get(posXBits)),
		YCM:        int(r.get(posYBits)),
		HeadingDeg: int(r.get(headingBits)),
	}
}
