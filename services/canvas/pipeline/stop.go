// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "sync/atomic"

// StopFlag is a cooperative stop request shared between a running chain
// and whoever wants it stopped. The zero value is ready to use.
//
// Setting the flag does not abort a generation call already in flight;
// its result is discarded when the call returns.
type StopFlag struct {
	stopped atomic.Bool
}

// NewStopFlag returns a cleared flag.
func NewStopFlag() *StopFlag {
	return &StopFlag{}
}

// Stop requests a stop. Safe to call more than once.
func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

// Stopped reports whether a stop was requested. A nil flag is never set.
func (f *StopFlag) Stopped() bool {
	return f != nil && f.stopped.Load()
}
