// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package eagle

import (
	"fmt"
	"strings"
)

// String renders the decoded frame for logs and the decode command.
func (d *Decoded) String() string {
	var b strings.Builder

	b.WriteString("eagle frame\n")
	fmt.Fprintf(&b, "  colour            : %s\n", d.Colour)
	fmt.Fprintf(&b, "  self     detected : %t\n", d.Self.Detected)
	fmt.Fprintf(&b, "  self     (cm,deg) : x=%d y=%d heading=%d\n",
		d.Self.XCM, d.Self.YCM, d.Self.HeadingDeg)
	fmt.Fprintf(&b, "  opponent detected : %t\n", d.Opponent.Detected)
	fmt.Fprintf(&b, "  opponent (cm,deg) : x=%d y=%d heading=%d\n",
		d.Opponent.XCM, d.Opponent.YCM, d.Opponent.HeadingDeg)
	fmt.Fprintf(&b, "  objects (%d)", len(d.Objects))

	for i, obj := range d.Objects {
		fmt.Fprintf(&b, "\n    %02d  %-10s x=%3d y=%3d heading=%3d",
			i, obj.Type, obj.XCM, obj.YCM, obj.HeadingDeg)
	}
	return b.String()
}
