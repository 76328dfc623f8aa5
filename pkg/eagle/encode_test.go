// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// referenceSnapshot is the scenario shared with the firmware test suite.
func referenceSnapshot() *WorldSnapshot {
	return &WorldSnapshot{
		Colour:   Blue,
		Self:     Robot{Detected: true, Pose: Pose{X: 0.10, Y: 0.20, Heading: radians(210)}},
		Opponent: Robot{Detected: true, Pose: Pose{X: 0.05, Y: 0.06, Heading: radians(90)}},
		Objects: []Object{
			{Type: Bleacher, Pose: Pose{X: 0.14, Y: 0.32, Heading: radians(60)}},
		},
	}
}

func TestEncode_ReferencePayload(t *testing.T) {
	want := append([]byte{
		0b00101010,
		0b10100000,
		0b10010000,
		0b10110110,
		0b10000000,
		0b10000001,
		0b10010110,
		0b00000000,
		0b00001100,
		0b01000101,
	}, make([]byte, PayloadLen-10)...)

	got, err := Encode(referenceSnapshot())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x\nwant       %x", got, want)
	}
}

func TestEncodeFrame_ReferenceChecksum(t *testing.T) {
	frame, err := EncodeFrame(referenceSnapshot())
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if frame[0] != StartByte {
		t.Errorf("frame[0] = 0x%02x, want 0x%02x", frame[0], StartByte)
	}
	if frame[FrameLen-1] != 248 {
		t.Errorf("checksum = %d, want 248", frame[FrameLen-1])
	}
}

func TestEncode_WrapAndRounding(t *testing.T) {
	s := &WorldSnapshot{
		Colour:   Yellow,
		Self:     Robot{Detected: false, Pose: Pose{X: 2.5, Y: 1.8, Heading: -math.Pi / 2}},
		Opponent: Robot{Detected: true, Pose: Pose{X: 6.0, Y: 3.0, Heading: 7.0}},
		Objects: []Object{
			{Type: Bleacher, Pose: Pose{X: 2.925, Y: 1.325, Heading: math.Pi / 2}},
			{Type: Bleacher, Pose: Pose{X: 0.075, Y: 0.4, Heading: math.Pi / 2}},
			{Type: Bleacher, Pose: Pose{X: 1.5, Y: 1.0, Heading: radians(135)}},
		},
	}

	payload, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	wantPrefix := []byte{
		0xe9, 0xa3, 0x75, 0x18, 0x0b, 0x4b, 0x8a, 0x01,
		0xf4, 0x74, 0x08, 0x66, 0x80, 0x90, 0x00, 0x00,
	}
	if !bytes.Equal(payload[:len(wantPrefix)], wantPrefix) {
		t.Errorf("payload prefix = %x, want %x", payload[:len(wantPrefix)], wantPrefix)
	}
	if sum := Checksum(payload); sum != 224 {
		t.Errorf("Checksum() = %d, want 224", sum)
	}

	d, err := Quantize(s)
	if err != nil {
		t.Fatalf("Quantize() error = %v", err)
	}

	// 600 cm wraps to 88 in 9 bits, 300 cm to 44 in 8 bits, 401 deg to 41.
	if d.Opponent.XCM != 88 || d.Opponent.YCM != 44 || d.Opponent.HeadingDeg != 41 {
		t.Errorf("opponent = %+v, want x=88 y=44 heading=41", d.Opponent)
	}
	if d.Self.HeadingDeg != 270 {
		t.Errorf("self heading = %d, want 270", d.Self.HeadingDeg)
	}

	// 292.5 cm rounds to 292 and 4.5 heading steps round to 4.
	wantObjects := []DecodedObject{
		{Type: Bleacher, RawX: 61, RawY: 20, RawHeading: 3, XCM: 290, YCM: 129, HeadingDeg: 90},
		{Type: Bleacher, RawX: 2, RawY: 6, RawHeading: 3, XCM: 10, YCM: 39, HeadingDeg: 90},
		{Type: Bleacher, RawX: 32, RawY: 16, RawHeading: 4, XCM: 152, YCM: 103, HeadingDeg: 120},
	}
	for i, want := range wantObjects {
		if d.Objects[i] != want {
			t.Errorf("object %d = %+v, want %+v", i, d.Objects[i], want)
		}
	}
}

func TestEncode_TruncatesObjects(t *testing.T) {
	s := NewSnapshot(Blue)
	s.Objects = make([]Object, MaxObjects+5)

	frame, err := EncodeFrame(s)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if len(frame) != FrameLen {
		t.Fatalf("len(frame) = %d, want %d", len(frame), FrameLen)
	}

	d, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(d.Objects) != MaxObjects {
		t.Errorf("decoded %d objects, want %d", len(d.Objects), MaxObjects)
	}
}

func TestEncode_InvalidSnapshot(t *testing.T) {
	tests := []struct {
		name string
		s    *WorldSnapshot
	}{
		{name: "nil snapshot", s: nil},
		{name: "unknown colour", s: &WorldSnapshot{Colour: 7}},
		{
			name: "object type out of range",
			s:    &WorldSnapshot{Objects: []Object{{Type: 4}}},
		},
		{
			name: "NaN self x",
			s:    &WorldSnapshot{Self: Robot{Pose: Pose{X: math.NaN()}}},
		},
		{
			name: "infinite opponent heading",
			s:    &WorldSnapshot{Opponent: Robot{Pose: Pose{Heading: math.Inf(1)}}},
		},
		{
			name: "absurd object y",
			s:    &WorldSnapshot{Objects: []Object{{Pose: Pose{Y: 1e12}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode(tt.s)
			if payload != nil {
				t.Error("Encode() should return nil payload on error")
			}
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("Encode() error = %v, want %v", err, ErrInvalidSnapshot)
			}
		})
	}
}

func TestEncode_IgnoresInvalidObjectsPastLimit(t *testing.T) {
	s := NewSnapshot(Blue)
	s.Objects = make([]Object, MaxObjects+1)
	s.Objects[MaxObjects] = Object{Pose: Pose{X: math.NaN()}}

	if _, err := Encode(s); err != nil {
		t.Errorf("Encode() error = %v, want nil for truncated objects", err)
	}
}

func TestFramePayload_InvalidLength(t *testing.T) {
	for _, n := range []int{0, PayloadLen - 1, PayloadLen + 1} {
		_, err := FramePayload(make([]byte, n))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("FramePayload(len=%d) error = %v, want %v", n, err, ErrInvalidPayload)
		}
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    byte
	}{
		{name: "empty", payload: nil, want: 0},
		{name: "single", payload: []byte{0x12}, want: 0x12},
		{name: "wraps", payload: []byte{0xff, 0x02}, want: 0x01},
		{name: "many", payload: bytes.Repeat([]byte{0x80}, 3), want: 0x80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.payload); got != tt.want {
				t.Errorf("Checksum() = 0x%02x, want 0x%02x", got, tt.want)
			}
		})
	}
}

func TestToDegrees(t *testing.T) {
	tests := []struct {
		rad  float64
		want int64
	}{
		{rad: 0, want: 0},
		{rad: math.Pi, want: 180},
		{rad: -math.Pi / 2, want: 270},
		{rad: 2 * math.Pi, want: 0},
		{rad: radians(359.6), want: 0},
		{rad: radians(-720 - 30), want: 330},
	}
	for _, tt := range tests {
		if got := ToDegrees(tt.rad); got != tt.want {
			t.Errorf("ToDegrees(%v) = %d, want %d", tt.rad, got, tt.want)
		}
	}
}

func TestToCentimetres(t *testing.T) {
	tests := []struct {
		m    float64
		want int64
	}{
		{m: 0.10, want: 10},
		{m: 0.125, want: 12},
		{m: 0.135, want: 14},
		{m: -0.02, want: -2},
		{m: 2.925, want: 292},
	}
	for _, tt := range tests {
		if got := ToCentimetres(tt.m); got != tt.want {
			t.Errorf("ToCentimetres(%v) = %d, want %d", tt.m, got, tt.want)
		}
	}
}

func TestParseColour(t *testing.T) {
	tests := []struct {
		in      string
		want    Colour
		wantErr bool
	}{
		{in: "blue", want: Blue},
		{in: "YELLOW", want: Yellow},
		{in: "", want: Blue},
		{in: "green", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseColour(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("ParseColour(%q) error = %v, want %v", tt.in, err, ErrInvalidSnapshot)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseColour(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
