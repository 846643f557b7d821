// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerator_QueueThenEcho(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockGenerator().QueueText("first").QueueError(boom)

	resp, err := m.Generate(context.Background(), Request{Kind: KindText, Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = m.Generate(context.Background(), Request{Kind: KindText, Prompt: "b"})
	assert.ErrorIs(t, err, boom)

	resp, err = m.Generate(context.Background(), Request{Kind: KindText, Prompt: "c"})
	require.NoError(t, err)
	assert.Equal(t, "mock: c", resp.Text)

	resp, err = m.Generate(context.Background(), Request{Kind: KindImage})
	require.NoError(t, err)
	assert.Contains(t, resp.Image, "data:image/png;base64,")

	assert.Len(t, m.Calls(), 4)
}

func TestMockGenerator_Func(t *testing.T) {
	m := &MockGenerator{GenerateFunc: func(_ context.Context, req Request) (*Response, error) {
		return &Response{Text: "fn:" + req.Prompt}, nil
	}}
	got, err := GenerateText(context.Background(), m, "", "x", false)
	require.NoError(t, err)
	assert.Equal(t, "fn:x", got)
}

func TestMockGenerator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockGenerator().Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimited_Paces(t *testing.T) {
	m := NewMockGenerator()
	r := NewRateLimited(m, 1000, 1)

	for i := 0; i < 3; i++ {
		_, err := r.Generate(context.Background(), Request{Kind: KindText, Prompt: "x"})
		require.NoError(t, err)
	}
	assert.Len(t, m.Calls(), 3)
}

func TestRateLimited_ContextEndsWhileWaiting(t *testing.T) {
	m := NewMockGenerator()
	r := NewRateLimited(m, 0.001, 1)

	_, err := r.Generate(context.Background(), Request{})
	require.NoError(t, err, "burst token is available")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Generate(ctx, Request{})
	require.Error(t, err)
	assert.Len(t, m.Calls(), 1, "provider is not called without a token")
}

func TestRateLimited_Unlimited(t *testing.T) {
	r := NewRateLimited(NewMockGenerator(), 0, 0)
	for i := 0; i < 100; i++ {
		_, err := r.Generate(context.Background(), Request{})
		require.NoError(t, err)
	}
}

func TestLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := NewMockGenerator().QueueText("ok").QueueError(ErrQuota)
	l := NewLogged(m, logger)

	_, err := l.Generate(context.Background(), Request{Kind: KindText, Prompt: "hello"})
	require.NoError(t, err)
	_, err = l.Generate(context.Background(), Request{Kind: KindText, Prompt: "hello"})
	assert.ErrorIs(t, err, ErrQuota)

	out := buf.String()
	assert.Contains(t, out, `"msg":"generation completed"`)
	assert.Contains(t, out, `"msg":"generation failed"`)
	assert.Contains(t, out, `"component":"generator"`)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"quota api error", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, ErrQuota},
		{"quota request error", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("x")}, ErrQuota},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, ErrNetwork},
		{"transport error", fmt.Errorf("dial tcp: connection refused"), ErrNetwork},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "cause stays reachable")
		})
	}

	assert.Nil(t, classify("op", nil))
	assert.Equal(t, context.Canceled, classify("op", context.Canceled))
}

func TestServiceError_Message(t *testing.T) {
	err := &ServiceError{Op: "chat", StatusCode: 429, Category: ErrQuota, Err: errors.New("slow down")}
	assert.Equal(t, "chat: generation quota exceeded (status 429): slow down", err.Error())

	err = &ServiceError{Op: "speech", Category: ErrMalformedResponse}
	assert.Equal(t, "speech: malformed generation response", err.Error())
}

func TestTimeout(t *testing.T) {
	slow := &MockGenerator{GenerateFunc: func(ctx context.Context, _ Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := NewTimeout(slow, 10*time.Millisecond).Generate(context.Background(), Request{Kind: KindText})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	m := NewMockGenerator()
	assert.Same(t, m, NewTimeout(m, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewTimeout(slow, time.Second).Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
