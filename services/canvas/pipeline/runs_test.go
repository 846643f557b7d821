// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/services/llm"
)

// gatedGenerator blocks every call until release is closed.
func gatedGenerator(started chan<- struct{}, release <-chan struct{}, answers ...string) *llm.MockGenerator {
	i := 0
	return &llm.MockGenerator{GenerateFunc: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		answer := answers[i%len(answers)]
		i++
		return &llm.Response{Text: answer}, nil
	}}
}

func TestManager_StopRunningChain(t *testing.T) {
	store := chainStore(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	gen := gatedGenerator(started, release, scriptAnswer, analyzeAnswer, modifyAnswer)
	m := NewManager(context.Background(), newExecutor(t, store, gen, nil))

	run, err := m.Start("mod")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.State)

	<-started
	again, err := m.Start("mod")
	require.NoError(t, err)
	assert.Equal(t, run.ID, again.ID, "a running chain is reused")

	require.NoError(t, m.Stop(run.ID))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))

	got, ok := m.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStopped, got.State)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Stopped)
	assert.Len(t, gen.Calls(), 1)
}

func TestManager_CompletedAndNewRun(t *testing.T) {
	store := chainStore(t)
	gen := llm.NewMockGenerator().
		QueueText(scriptAnswer).QueueText(analyzeAnswer).QueueText(modifyAnswer).
		QueueText(scriptAnswer).QueueText(analyzeAnswer).QueueText(modifyAnswer)
	m := NewManager(context.Background(), newExecutor(t, store, gen, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := m.Start("mod")
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx))

	second, err := m.Start("mod")
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx))
	assert.NotEqual(t, first.ID, second.ID, "finished runs are not reused")

	got, _ := m.Get(first.ID)
	assert.Equal(t, RunCompleted, got.State)
	assert.Len(t, m.List(), 2)
}

func TestManager_ForgetsOldFinishedRuns(t *testing.T) {
	gen := llm.NewMockGenerator()
	for range 3 {
		gen.QueueText(scriptAnswer).QueueText(analyzeAnswer).QueueText(modifyAnswer)
	}
	m := NewManager(context.Background(), newExecutor(t, chainStore(t), gen, nil))
	m.keep = 2
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string
	for range 3 {
		run, err := m.Start("mod")
		require.NoError(t, err)
		require.NoError(t, m.Wait(ctx))
		ids = append(ids, run.ID)
	}

	_, ok := m.Get(ids[0])
	assert.False(t, ok, "the oldest finished run is forgotten")
	assert.ErrorIs(t, m.Stop(ids[0]), ErrRunNotFound)
	for _, id := range ids[1:] {
		got, ok := m.Get(id)
		require.True(t, ok)
		assert.Equal(t, RunCompleted, got.State)
	}
	assert.Len(t, m.List(), 2)
}

func TestManager_RunningRunIsNeverForgotten(t *testing.T) {
	store := chainStore(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	gen := gatedGenerator(started, release, scriptAnswer, analyzeAnswer, modifyAnswer)
	m := NewManager(context.Background(), newExecutor(t, store, gen, nil))
	m.keep = 0

	run, err := m.Start("mod")
	require.NoError(t, err)
	<-started
	got, ok := m.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, RunRunning, got.State)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
	_, ok = m.Get(run.ID)
	assert.False(t, ok)
	assert.Empty(t, m.List())
}

func TestManager_FailedRun(t *testing.T) {
	gen := llm.NewMockGenerator().QueueError(&llm.ServiceError{Op: "chat", Category: llm.ErrNetwork})
	m := NewManager(context.Background(), newExecutor(t, chainStore(t), gen, nil))

	run, err := m.Start("an")
	require.NoError(t, err)
	require.NoError(t, m.Wait(context.Background()))

	got, _ := m.Get(run.ID)
	assert.Equal(t, RunFailed, got.State)
	assert.Contains(t, got.Error, "generate step")
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(context.Background(), newExecutor(t, chainStore(t), llm.NewMockGenerator(), nil))

	_, err := m.Start("gen")
	assert.ErrorIs(t, err, ErrNotChainable)
	assert.Empty(t, m.List())

	assert.ErrorIs(t, m.Stop("nope"), ErrRunNotFound)
	_, ok := m.Get("nope")
	assert.False(t, ok)
}

func TestStopFlag(t *testing.T) {
	var nilFlag *StopFlag
	assert.False(t, nilFlag.Stopped())

	var f StopFlag
	assert.False(t, f.Stopped())
	f.Stop()
	f.Stop()
	assert.True(t, f.Stopped())
}
