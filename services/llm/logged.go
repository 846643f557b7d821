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
	"log/slog"
	"time"
)

// Logged logs every call to another Generator.
type Logged struct {
	next   Generator
	logger *slog.Logger
}

// NewLogged wraps next. A nil logger uses slog.Default().
func NewLogged(next Generator, logger *slog.Logger) *Logged {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logged{next: next, logger: logger.With(slog.String("component", "generator"))}
}

func (l *Logged) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.next.Generate(ctx, req)
	attrs := []any{
		slog.String("kind", string(req.Kind)),
		slog.Int("prompt_chars", len(req.Prompt)),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		l.logger.Warn("generation failed", append(attrs, slog.String("error", err.Error()))...)
		return nil, err
	}
	l.logger.Debug("generation completed", attrs...)
	return resp, nil
}
