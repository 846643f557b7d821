// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
)

func TestLayout_EvenSpacing(t *testing.T) {
	n := graph.Node{ID: "d", Kind: graph.KindPromptAnalyzer, Value: `{}`, Height: 200}

	got := Layout(n)

	require.Len(t, got, 3)
	assert.Equal(t, PortPosition{PortID: "environment", YOffset: 77.5, Label: "Environment"}, got[0])
	assert.Equal(t, 115.0, got[1].YOffset)
	assert.Equal(t, 152.5, got[2].YOffset)
}

func TestLayout_DynamicPortsFollowPayload(t *testing.T) {
	n := graph.Node{ID: "d", Kind: graph.KindPromptAnalyzer, Height: 300,
		Value: `{"characters":["Bob","Ann"]}`}

	got := Layout(n)

	require.Len(t, got, 5)
	assert.Equal(t, "character-0", got[3].PortID)
	assert.Equal(t, "Character 1: Bob", got[3].Label)
	assert.Equal(t, "character-1", got[4].PortID)
}

func TestLayout_ClampsToMargins(t *testing.T) {
	n := graph.Node{ID: "t", Kind: graph.KindTranslator, Height: 60}

	got := Layout(n)

	require.Len(t, got, 1)
	assert.Equal(t, HeaderHeight+MinPortMargin, got[0].YOffset)
}

func TestLayout_UpperClamp(t *testing.T) {
	// Thirty ideas in a short node: the later ports would fall below the
	// footer margin without the clamp.
	value := `{"ideas":[` + repeat(`"x"`, 30) + `]}`
	n := graph.Node{ID: "i", Kind: graph.KindIdeaGenerator, Height: 120, Value: value}

	for _, p := range Layout(n) {
		assert.GreaterOrEqual(t, p.YOffset, HeaderHeight+MinPortMargin)
		assert.LessOrEqual(t, p.YOffset, n.Height-MinPortMargin+1e-9)
	}
}

func TestLayout_Collapsed(t *testing.T) {
	n := graph.Node{ID: "d", Kind: graph.KindPromptAnalyzer, Value: `{}`, Height: 400, IsCollapsed: true}

	for _, p := range Layout(n) {
		assert.Equal(t, CollapsedHeight/2, p.YOffset)
	}
	assert.Len(t, Layout(n), 3)
}

func TestLayout_HiddenHandles(t *testing.T) {
	n := graph.Node{ID: "d", Kind: graph.KindPromptAnalyzer, Value: `{}`, Height: 200, AreOutputHandlesHidden: true}

	got := Layout(n)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLayout_NoDynamicPortsYet(t *testing.T) {
	n := graph.Node{ID: "i", Kind: graph.KindIdeaGenerator, Height: 200}

	got := Layout(n)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLayout_MalformedValueUsesEmptyShape(t *testing.T) {
	n := graph.Node{ID: "m", Kind: graph.KindScriptPromptModifier, Value: "{oops", Height: 200}

	got := Layout(n)
	require.Len(t, got, 1)
	assert.Equal(t, HandleAllFinalPrompts, got[0].PortID)
}

func TestLayout_UnknownKind(t *testing.T) {
	assert.Empty(t, Layout(graph.Node{ID: "x", Kind: "NOPE", Height: 100}))
}

func TestLayout_Deterministic(t *testing.T) {
	n := graph.Node{ID: "g", Kind: graph.KindScriptGenerator, Height: 500,
		Value: `{"narratorEnabled":true,"scenes":[{"title":"A"},{"title":"B"}]}`}

	first := Layout(n)
	assert.Equal(t, first, Layout(n))
	ids := make([]string, 0, len(first))
	for _, p := range first {
		ids = append(ids, p.PortID)
	}
	assert.Equal(t, []string{
		"all-script-data", "characters", "style",
		"scene-0", "narrator-0", "scene-1", "narrator-1",
	}, ids)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
