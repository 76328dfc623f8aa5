// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

import (
	"fmt"
	"math"
	"strings"
)

// Wire constants shared with the robot firmware. Changing any of them breaks
// compatibility and requires a new LayoutVersion.
const (
	// LayoutVersion identifies the payload layout. Version 1 carried robot
	// poses only; version 2 added the static object list.
	LayoutVersion = 2

	// StartByte prefixes every frame.
	StartByte byte = 0xFF

	// PayloadLen is the fixed payload size in bytes.
	PayloadLen = 128

	// FrameLen is the full frame size: start byte, payload, checksum.
	FrameLen = PayloadLen + 2

	// MaxObjects is the largest object count the payload can carry.
	// 64 header bits + 60 objects * 16 bits fill the payload exactly.
	MaxObjects = 60
)

// Field widths in bits.
const (
	colourBits     = 1
	detectedBits   = 1
	posXBits       = 9
	posYBits       = 8
	headingBits    = 9
	countBits      = 6
	headerPadBits  = 3
	objTypeBits    = 2
	objXBits       = 6
	objYBits       = 5
	objHeadingBits = 3
)

// Object quantization ranges.
const (
	objXRangeCM    = 300
	objYRangeCM    = 200
	objHeadingStep = 30
)

// maxMagnitude bounds snapshot coordinates. Anything larger is a unit bug
// upstream rather than a position on the table.
const maxMagnitude = 1e6

// Colour is the team colour of our robot.
type Colour uint8

const (
	// Blue is encoded as 0.
	Blue Colour = 0

	// Yellow is encoded as 1.
	Yellow Colour = 1
)

// String returns "blue" or "yellow".
func (c Colour) String() string {
	switch c {
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	default:
		return fmt.Sprintf("colour(%d)", uint8(c))
	}
}

// ParseColour converts "blue" or "yellow" (case-insensitive) into a Colour.
// An empty string yields Blue, matching the firmware default.
func ParseColour(s string) (Colour, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blue":
		return Blue, nil
	case "yellow":
		return Yellow, nil
	default:
		return 0, fmt.Errorf("%w: unknown colour %q", ErrInvalidSnapshot, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Colour) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Colour) UnmarshalText(text []byte) error {
	v, err := ParseColour(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ObjectType classifies a static object on the table.
type ObjectType uint8

const (
	// Bleacher is a stack of cans and planks.
	Bleacher ObjectType = iota

	// Plank is a loose plank.
	Plank

	// Can is a loose can.
	Can
)

var objectTypeNames = map[ObjectType]string{
	Bleacher: "bleacher",
	Plank:    "plank",
	Can:      "can",
}

// String returns the lowercase object type name.
func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t ObjectType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ObjectType) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	if name == "" {
		*t = Bleacher
		return nil
	}
	for k, v := range objectTypeNames {
		if v == name {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("%w: unknown object type %q", ErrInvalidSnapshot, text)
}

// Pose is a position in metres and a heading in radians.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Robot is a tracked robot and whether vision saw it this cycle.
type Robot struct {
	Detected bool `json:"detected"`
	Pose     Pose `json:"pose"`
}

// Object is a static game element.
type Object struct {
	Type ObjectType `json:"type"`
	Pose Pose       `json:"pose"`
}

// WorldSnapshot is the world state produced once per control cycle.
type WorldSnapshot struct {
	Colour   Colour   `json:"colour"`
	Self     Robot    `json:"self"`
	Opponent Robot    `json:"opponent"`
	Objects  []Object `json:"objects,omitempty"`
}

// DefaultObjects returns the bleacher layout used when vision has not yet
// reported any objects.
func DefaultObjects() []Object {
	return []Object{
		{Type: Bleacher, Pose: Pose{X: 3.0 - 0.075, Y: 1.325, Heading: math.Pi / 2}},
	}
}

// NewSnapshot returns a snapshot for the given colour with no robots
// detected and the default object layout.
func NewSnapshot(colour Colour) *WorldSnapshot {
	return &WorldSnapshot{
		Colour:  colour,
		Objects: DefaultObjects(),
	}
}

// validate rejects snapshots that cannot be meaningfully encoded.
func validate(s *WorldSnapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if s.Colour != Blue && s.Colour != Yellow {
		return fmt.Errorf("%w: unknown colour %d", ErrInvalidSnapshot, s.Colour)
	}
	if err := validatePose("self", s.Self.Pose); err != nil {
		return err
	}
	if err := validatePose("opponent", s.Opponent.Pose); err != nil {
		return err
	}
	for i, obj := range s.Objects {
		if i >= MaxObjects {
			break
		}
		if obj.Type >= 1<<objTypeBits {
			return fmt.Errorf("%w: object %d has type %d", ErrInvalidSnapshot, i, obj.Type)
		}
		if err := validatePose(fmt.Sprintf("object %d", i), obj.Pose); err != nil {
			return err
		}
	}
	return nil
}

func validatePose(name string, p Pose) error {
	for _, v := range [...]float64{p.X, p.Y, p.Heading} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxMagnitude {
			return fmt.Errorf("%w: %s pose has non-finite or out-of-bounds value %v",
				ErrInvalidSnapshot, name, v)
		}
	}
	return nil
}
