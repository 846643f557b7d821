// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func node(id string, kind graph.NodeKind, value string) graph.Node {
	return graph.Node{ID: id, Kind: kind, Value: value, Width: 240, Height: 200}
}

func conn(id, from, fromHandle, to, toHandle string) graph.Connection {
	return graph.Connection{ID: id, FromNodeID: from, FromHandleID: fromHandle, ToNodeID: to, ToHandleID: toHandle}
}

func newStore(t *testing.T, nodes []graph.Node, conns []graph.Connection) *graph.Store {
	t.Helper()
	snap, err := graph.NewSnapshot(nodes, conns)
	require.NoError(t, err)
	return graph.NewStoreFrom(snap)
}

// stored decodes the current value of node id into T.
func stored[T any](t *testing.T, store *graph.Store, id string) T {
	t.Helper()
	n, ok := store.Snapshot().Node(id)
	require.True(t, ok, "node %s", id)
	var v T
	require.NoError(t, json.Unmarshal([]byte(n.Value), &v), "value %s", n.Value)
	return v
}

func TestRunNode_TranslatorUsesConnectedInput(t *testing.T) {
	store := newStore(t,
		[]graph.Node{
			node("t", graph.KindTextInput, "hello"),
			node("dot", graph.KindRerouteDot, ""),
			node("tr", graph.KindTranslator, `{"inputText":"stale","targetLanguage":"French"}`),
		},
		[]graph.Connection{conn("c1", "t", "", "dot", ""), conn("c2", "dot", "", "tr", "")},
	)
	gen := llm.NewMockGenerator().QueueText("  bonjour \n")
	r := NewRunner(store, gen, discardLogger())

	n, err := r.RunNode(context.Background(), "tr")
	require.NoError(t, err)
	assert.Equal(t, graph.KindTranslator, n.Kind)

	got := stored[payload.Translator](t, store, "tr")
	assert.Equal(t, "hello", got.InputText)
	assert.Equal(t, "bonjour", got.TranslatedText)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Prompt)
	assert.Contains(t, calls[0].System, "French")
	assert.False(t, calls[0].JSON)
}

func TestRunNode_FallsBackToLocalInput(t *testing.T) {
	store := newStore(t, []graph.Node{node("tr", graph.KindTranslator, `{"inputText":"hola"}`)}, nil)
	gen := llm.NewMockGenerator().QueueText("hello")

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "tr")
	require.NoError(t, err)

	assert.Equal(t, "hola", gen.Calls()[0].Prompt)
	assert.Contains(t, gen.Calls()[0].System, defaultLanguage)
}

func TestRunNode_MissingInputRecordsError(t *testing.T) {
	store := newStore(t, []graph.Node{node("imp", graph.KindPromptImprover, "")}, nil)
	gen := llm.NewMockGenerator()

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "imp")
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, gen.Calls())
	assert.Equal(t, ErrMissingInput.Error(), stored[payload.PromptImprover](t, store, "imp").Error)
}

func TestRunNode_NotRunnable(t *testing.T) {
	store := newStore(t, []graph.Node{node("t", graph.KindTextInput, "hi")}, nil)

	_, err := NewRunner(store, llm.NewMockGenerator(), discardLogger()).RunNode(context.Background(), "t")
	assert.ErrorIs(t, err, ErrNotRunnable)

	n, _ := store.Snapshot().Node("t")
	assert.Equal(t, "hi", n.Value)
	assert.Equal(t, uint64(0), store.Snapshot().Version())
}

func TestRunNode_UnknownNode(t *testing.T) {
	store := newStore(t, nil, nil)
	_, err := NewRunner(store, llm.NewMockGenerator(), nil).RunNode(context.Background(), "nope")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestRunNode_GenerationFailureIsSurfaced(t *testing.T) {
	store := newStore(t, []graph.Node{node("imp", graph.KindPromptImprover, `{"inputPrompt":"a cat"}`)}, nil)
	quota := &llm.ServiceError{Op: "chat", StatusCode: 429, Category: llm.ErrQuota, Err: errors.New("slow down")}
	gen := llm.NewMockGenerator().QueueError(quota).QueueText("a fluffy cat")
	r := NewRunner(store, gen, discardLogger())

	_, err := r.RunNode(context.Background(), "imp")
	assert.ErrorIs(t, err, llm.ErrQuota)
	assert.Contains(t, stored[payload.PromptImprover](t, store, "imp").Error, "quota")

	_, err = r.RunNode(context.Background(), "imp")
	require.NoError(t, err)
	got := stored[payload.PromptImprover](t, store, "imp")
	assert.Equal(t, "a fluffy cat", got.ImprovedPrompt)
	assert.Empty(t, got.Error, "success clears the previous error")
}

func TestRunNode_KeepsEditsMadeDuringCall(t *testing.T) {
	store := newStore(t, []graph.Node{
		node("tr", graph.KindTranslator, `{"inputText":"hola","targetLanguage":"French"}`),
	}, nil)
	gen := &llm.MockGenerator{GenerateFunc: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		_, err := store.SetNodeValue("tr", `{"inputText":"adios","targetLanguage":"German"}`)
		require.NoError(t, err)
		return &llm.Response{Text: "bonjour"}, nil
	}}

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "tr")
	require.NoError(t, err)

	got := stored[payload.Translator](t, store, "tr")
	assert.Equal(t, "German", got.TargetLanguage)
	assert.Equal(t, "adios", got.InputText, "the edited input is not replaced by the one the run used")
	assert.Equal(t, "bonjour", got.TranslatedText)
}

func TestRunNode_EchoesUsedInputWhenUnedited(t *testing.T) {
	store := newStore(t,
		[]graph.Node{
			node("t", graph.KindTextInput, "a cat"),
			node("imp", graph.KindPromptImprover, `{"inputPrompt":"stale"}`),
		},
		[]graph.Connection{conn("c1", "t", "", "imp", "")},
	)
	gen := llm.NewMockGenerator().QueueText("a fluffy cat")

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "imp")
	require.NoError(t, err)

	got := stored[payload.PromptImprover](t, store, "imp")
	assert.Equal(t, "a cat", got.InputPrompt)
	assert.Equal(t, "a fluffy cat", got.ImprovedPrompt)
}

func TestRunNode_NodeRemovedDuringCall(t *testing.T) {
	store := newStore(t, []graph.Node{node("imp", graph.KindPromptImprover, `{"inputPrompt":"a cat"}`)}, nil)
	gen := &llm.MockGenerator{GenerateFunc: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		_, err := store.RemoveNode("imp")
		require.NoError(t, err)
		return &llm.Response{Text: "a fluffy cat"}, nil
	}}

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "imp")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
	assert.Equal(t, 0, store.Snapshot().Len())
}

func TestRunNode_MalformedJSONAnswer(t *testing.T) {
	store := newStore(t, []graph.Node{node("i", graph.KindIdeaGenerator, `{"topic":"space"}`)}, nil)
	gen := llm.NewMockGenerator().QueueText("not json")

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "i")
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
	assert.True(t, gen.Calls()[0].JSON)
}

func TestRunNode_Ideas(t *testing.T) {
	store := newStore(t, []graph.Node{node("i", graph.KindIdeaGenerator, `{"topic":"space","count":2}`)}, nil)
	gen := llm.NewMockGenerator().QueueText("```json\n" + `{"ideas":[{"title":"Moon","description":"bases"},"Mars"]}` + "\n```")

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "i")
	require.NoError(t, err)

	got := stored[payload.IdeaGenerator](t, store, "i")
	require.Len(t, got.Ideas, 2)
	assert.Equal(t, "Moon", got.Ideas[0].Title)
	assert.Equal(t, "Mars", got.Ideas[1].Title)
	assert.Contains(t, gen.Calls()[0].Prompt, "Ideas: 2")
}

func TestRunNode_Characters(t *testing.T) {
	store := newStore(t,
		[]graph.Node{
			node("t", graph.KindTextInput, "a pirate story"),
			node("cg", graph.KindCharacterGenerator, ""),
		},
		[]graph.Connection{conn("c", "t", "", "cg", "prompt")},
	)
	gen := llm.NewMockGenerator().QueueText(`{"characters":[{"name":"Anne","description":"captain"},{"name":"Jack"}]}`)

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "cg")
	require.NoError(t, err)

	got := stored[payload.CharacterGenerator](t, store, "cg")
	assert.Equal(t, "a pirate story", got.Prompt)
	assert.Equal(t, []string{"Anne", "Jack"}, payload.CharacterNames(got.Characters))
}

func TestRunNode_Titles(t *testing.T) {
	store := newStore(t, []graph.Node{node("y", graph.KindYouTubeTitleGenerator, `{"idea":"baking bread"}`)}, nil)
	gen := llm.NewMockGenerator().QueueText(`{"titles":["Bread 101"],"description":"how to","tags":["bread","baking"]}`)

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "y")
	require.NoError(t, err)

	got := stored[payload.YouTubeTitleGenerator](t, store, "y")
	assert.Equal(t, []string{"Bread 101"}, got.Titles)
	assert.Equal(t, []string{"bread", "baking"}, got.Tags)
}

func TestRunNode_PromptAnalyzer(t *testing.T) {
	store := newStore(t, []graph.Node{node("pa", graph.KindPromptAnalyzer, `{"inputPrompt":"Bob runs in rain, noir"}`)}, nil)
	gen := llm.NewMockGenerator().QueueText(`{"environment":"rainy street","characters":["Bob"],"action":"running","style":"noir"}`)

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "pa")
	require.NoError(t, err)

	got := stored[payload.PromptAnalyzer](t, store, "pa")
	assert.Equal(t, "rainy street", got.Environment)
	assert.Equal(t, []string{"Bob"}, got.Characters)
}

func TestRunNode_ImageGeneratorAndEditor(t *testing.T) {
	store := newStore(t,
		[]graph.Node{
			node("p", graph.KindTextInput, "a red fox"),
			node("img", graph.KindImageGenerator, ""),
			node("edit", graph.KindImageEditor, `{"prompt":"make it winter"}`),
		},
		[]graph.Connection{
			conn("c1", "p", "", "img", "prompt"),
			conn("c2", "img", "", "edit", "image"),
		},
	)
	gen := llm.NewMockGenerator()
	r := NewRunner(store, gen, discardLogger())

	_, err := r.RunNode(context.Background(), "edit")
	assert.ErrorIs(t, err, ErrMissingInput, "no image upstream yet")

	_, err = r.RunNode(context.Background(), "img")
	require.NoError(t, err)
	img := stored[payload.ImageGenerator](t, store, "img")
	assert.Equal(t, "a red fox", img.Prompt)
	assert.Contains(t, img.Image, "data:image/png;base64,")

	_, err = r.RunNode(context.Background(), "edit")
	require.NoError(t, err)
	edit := stored[payload.ImageEditor](t, store, "edit")
	assert.Equal(t, img.Image, edit.InputImage)

	calls := gen.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, llm.KindImage, last.Kind)
	assert.Equal(t, "make it winter", last.Prompt)
	assert.Equal(t, img.Image, last.ImageInput)
}

func TestRunNode_ImageSequence(t *testing.T) {
	store := newStore(t, []graph.Node{node("s", graph.KindImageSequenceGenerator, `{"prompts":["one","","two"]}`)}, nil)
	gen := llm.NewMockGenerator()

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "s")
	require.NoError(t, err)
	got := stored[payload.ImageSequenceGenerator](t, store, "s")
	assert.Equal(t, []string{"one", "two"}, got.Prompts)
	assert.Len(t, got.Images, 2)
	assert.Len(t, gen.Calls(), 2)
}

func TestRunNode_Audio(t *testing.T) {
	store := newStore(t,
		[]graph.Node{
			node("t", graph.KindTextInput, "Once upon a time"),
			node("a", graph.KindAudioGenerator, `{"voice":"nova"}`),
		},
		[]graph.Connection{conn("c", "t", "", "a", "text")},
	)
	gen := llm.NewMockGenerator()

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "a")
	require.NoError(t, err)

	got := stored[payload.AudioGenerator](t, store, "a")
	assert.Contains(t, got.Audio, "data:audio/mpeg;base64,")
	assert.Equal(t, "nova", gen.Calls()[0].Voice)
	assert.Equal(t, llm.KindAudio, gen.Calls()[0].Kind)
}

func TestRunNode_EmptyImageIsMalformed(t *testing.T) {
	store := newStore(t, []graph.Node{node("img", graph.KindImageGenerator, `{"prompt":"x"}`)}, nil)
	gen := llm.NewMockGenerator().Queue(&llm.Response{}, nil)

	_, err := NewRunner(store, gen, discardLogger()).RunNode(context.Background(), "img")
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestRunnable(t *testing.T) {
	assert.True(t, Runnable(graph.KindScriptGenerator))
	assert.True(t, Runnable(graph.KindTranslator))
	assert.False(t, Runnable(graph.KindTextInput))
	assert.False(t, Runnable(graph.KindRerouteDot))
	assert.False(t, Runnable(graph.KindCharacterCard))
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFence(` {"a":1} `))
}
