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
	"fmt"
	"sync"
)

// MockGenerator is a scripted Generator for tests and offline runs.
//
// Description:
//
//	If GenerateFunc is set it answers every call. Otherwise queued
//	responses are returned in order, and once the queue is empty a canned
//	echo of the prompt is returned for the request kind.
//
// Thread Safety:
//
//	Safe for concurrent use.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req Request) (*Response, error)

	mu    sync.Mutex
	queue []mockResult
	calls []Request
}

type mockResult struct {
	resp *Response
	err  error
}

// NewMockGenerator creates an empty mock.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// QueueText enqueues a text response.
func (m *MockGenerator) QueueText(text string) *MockGenerator {
	return m.Queue(&Response{Text: text}, nil)
}

// QueueError enqueues a failure.
func (m *MockGenerator) QueueError(err error) *MockGenerator {
	return m.Queue(nil, err)
}

// Queue enqueues a response or error.
func (m *MockGenerator) Queue(resp *Response, err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{resp: resp, err: err})
	return m
}

// Calls returns a copy of every request received.
func (m *MockGenerator) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.GenerateFunc
	var next *mockResult
	if fn == nil && len(m.queue) > 0 {
		head := m.queue[0]
		next = &head
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if next != nil {
		return next.resp, next.err
	}
	switch req.Kind {
	case KindImage:
		return &Response{Image: DataURL("image/png", []byte("mock image")), Model: "mock"}, nil
	case KindAudio:
		return &Response{Audio: DataURL("audio/mpeg", []byte("mock audio")), Model: "mock"}, nil
	default:
		return &Response{Text: fmt.Sprintf("mock: %s", req.Prompt), Model: "mock"}, nil
	}
}
