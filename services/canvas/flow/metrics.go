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

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolutionsTotal counts port resolutions.
	// Labels: kind (node kind, or "unknown"), outcome (value, empty, missing)
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvas",
		Subsystem: "flow",
		Name:      "resolutions_total",
		Help:      "Total port resolutions by node kind and outcome",
	}, []string{"kind", "outcome"})

	// cyclesTotal counts resolutions cut short by a revisited node.
	// Labels: kind
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvas",
		Subsystem: "flow",
		Name:      "cycles_total",
		Help:      "Total resolutions that re-entered a node already on the path",
	}, []string{"kind"})
)
