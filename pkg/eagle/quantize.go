// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

import "math"

// DecodedRobot holds a robot's fields as they travel on the wire.
type DecodedRobot struct {
	Detected   bool `json:"detected"`
	XCM        int  `json:"x_cm"`
	YCM        int  `json:"y_cm"`
	HeadingDeg int  `json:"heading_deg"`
}

// DecodedObject holds an object's quantized wire fields and the centimetre
// and degree values the firmware reconstructs from them.
type DecodedObject struct {
	Type       ObjectType `json:"type"`
	RawX       uint8      `json:"raw_x"`
	RawY       uint8      `json:"raw_y"`
	RawHeading uint8      `json:"raw_heading"`
	XCM        int        `json:"x_cm"`
	YCM        int        `json:"y_cm"`
	HeadingDeg int        `json:"heading_deg"`
}

// Decoded is the integer view of a payload. Decode produces it from bytes;
// Quantize produces it from a snapshot, so the two are directly comparable.
type Decoded struct {
	Colour   Colour          `json:"colour"`
	Self     DecodedRobot    `json:"self"`
	Opponent DecodedRobot    `json:"opponent"`
	Objects  []DecodedObject `json:"objects"`
}

// round is the rounding used by the firmware reference encoder: halves go
// to the nearest even integer.
func round(v float64) int64 {
	return int64(math.RoundToEven(v))
}

// ToCentimetres converts metres to whole centimetres.
func ToCentimetres(m float64) int64 {
	return round(m * 100)
}

// ToDegrees converts radians to whole degrees in [0, 360).
func ToDegrees(rad float64) int64 {
	d := round(rad*180/math.Pi) % 360
	if d < 0 {
		d += 360
	}
	return d
}

// Quantize computes the wire values for s without packing them: positions
// and headings wrapped to their field widths, objects truncated to
// MaxObjects and quantized. It fails only for invalid snapshots.
func Quantize(s *WorldSnapshot) (*Decoded, error) {
	if err := validate(s); err != nil {
		return nil, err
	}

	d := &Decoded{
		Colour:   s.Colour,
		Self:     quantizeRobot(s.Self),
		Opponent: quantizeRobot(s.Opponent),
	}

	objects := s.Objects
	if len(objects) > MaxObjects {
		objects = objects[:MaxObjects]
	}
	d.Objects = make([]DecodedObject, 0, len(objects))
	for _, obj := range objects {
		d.Objects = append(d.Objects, quantizeObject(obj))
	}
	return d, nil
}

func quantizeRobot(r Robot) DecodedRobot {
	return DecodedRobot{
		Detected:   r.Detected,
		XCM:        int(mask(ToCentimetres(r.Pose.X), posXBits)),
		YCM:        int(mask(ToCentimetres(r.Pose.Y), posYBits)),
		HeadingDeg: int(mask(ToDegrees(r.Pose.Heading), headingBits)),
	}
}

func quantizeObject(obj Object) DecodedObject {
	maxX := float64(int64(1)<<objXBits - 1)
	maxY := float64(int64(1)<<objYBits - 1)

	rawX := mask(round(float64(ToCentimetres(obj.Pose.X))*maxX/objXRangeCM), objXBits)
	rawY := mask(round(float64(ToCentimetres(obj.Pose.Y))*maxY/objYRangeCM), objYBits)
	rawH := mask(round(float64(ToDegrees(obj.Pose.Heading)%180)/objHeadingStep), objHeadingBits)

	return expandObject(obj.Type, uint8(rawX), uint8(rawY), uint8(rawH))
}

// expandObject fills in the reconstructed centimetre and degree values for a
// set of raw wire fields.
func expandObject(t ObjectType, rawX, rawY, rawH uint8) DecodedObject {
	maxX := float64(int64(1)<<objXBits - 1)
	maxY := float64(int64(1)<<objYBits - 1)

	return DecodedObject{
		Type:       t,
		RawX:       rawX,
		RawY:       rawY,
		RawHeading: rawH,
		XCM:        int(round(float64(rawX) * objXRangeCM / maxX)),
		YCM:        int(round(float64(rawY) * objYRangeCM / maxY)),
		HeadingDeg: int(rawH) * objHeadingStep,
	}
}
