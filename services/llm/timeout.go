// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"time"
)

// Timeout bounds each call to another Generator. An expired call is
// reported as ErrNetwork so the node shows a service failure rather than
// a cancellation.
type Timeout struct {
	next    Generator
	timeout time.Duration
}

// NewTimeout wraps next. A non-positive d returns next unchanged.
func NewTimeout(next Generator, d time.Duration) Generator {
	if d <= 0 {
		return next
	}
	return &Timeout{next: next, timeout: d}
}

func (t *Timeout) Generate(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.next.Generate(callCtx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &ServiceError{Op: string(req.Kind), Category: ErrNetwork, Err: err}
	}
	return resp, err
}
