// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

import "github.com/AleutianAI/AleutianCanvas/services/canvas/graph"

// Node chrome dimensions in pixels.
const (
	HeaderHeight    = 40.0
	FooterHeight    = 10.0
	MinPortMargin   = 16.0
	CollapsedHeight = 40.0
)

// PortPosition places one output port along a node's right edge.
type PortPosition struct {
	PortID  string  `json:"portId"`
	YOffset float64 `json:"yOffset"`
	Label   string  `json:"label"`
}

// Layout computes the vertical position of each output port of n.
//
// Description:
//
//	Ports are spread evenly over the body between the header and footer:
//	y_i = header + (i+1) * usable / (count+1), then clamped into
//	[header+margin, height-margin]. A collapsed node stacks every port at
//	the middle of its collapsed header. A node with hidden output handles
//	has none.
//
// Outputs:
//
//	[]PortPosition - Ports in display order. Never nil.
func Layout(n graph.Node) []PortPosition {
	if n.AreOutputHandlesHidden {
		return []PortPosition{}
	}
	ports := PortsOf(n)
	out := make([]PortPosition, 0, len(ports))
	if len(ports) == 0 {
		return out
	}

	if n.IsCollapsed {
		for _, p := range ports {
			out = append(out, PortPosition{PortID: p.ID, YOffset: CollapsedHeight / 2, Label: p.Label})
		}
		return out
	}

	usable := n.Height - HeaderHeight - FooterHeight
	if usable < 0 {
		usable = 0
	}
	step := usable / float64(len(ports)+1)
	lo, hi := HeaderHeight+MinPortMargin, n.Height-MinPortMargin

	for i, p := range ports {
		y := HeaderHeight + float64(i+1)*step
		y = min(y, hi)
		y = max(y, lo)
		out = append(out, PortPosition{PortID: p.ID, YOffset: y, Label: p.Label})
	}
	return out
}
