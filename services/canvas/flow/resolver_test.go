// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package flow

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
)

func node(id string, kind graph.NodeKind, value string) graph.Node {
	return graph.Node{ID: id, Kind: kind, Value: value, Width: 240, Height: 200}
}

func conn(id, from, fromHandle, to, toHandle string) graph.Connection {
	return graph.Connection{ID: id, FromNodeID: from, FromHandleID: fromHandle, ToNodeID: to, ToHandleID: toHandle}
}

func TestResolve_UnknownNode(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{node("a", graph.KindTextInput, "hi")}, nil)

	assert.Equal(t, "", Resolve(snap, "missing", ""))
	assert.Equal(t, "", Resolve(snap, "missing", "character-0"))
	assert.Equal(t, "", Resolve(graph.MustSnapshot(nil, nil), "a", ""))
}

func TestResolve_NilResolverIsTotal(t *testing.T) {
	var r *Resolver
	assert.Equal(t, "", r.ResolveValue("a", "", nil))
	assert.Equal(t, "", NewResolver(nil).ResolveValue("a", "", nil))
}

func TestResolve_InvalidJSONNeverPanics(t *testing.T) {
	var nodes []graph.Node
	for i, k := range graph.AllKinds() {
		nodes = append(nodes, node(string(rune('a'+i)), k, "{broken"))
	}
	snap := graph.MustSnapshot(nodes, nil)

	for _, n := range nodes {
		for _, h := range []string{"", "character-0", "all-script-data", "nope", "scene-3"} {
			assert.NotPanics(t, func() {
				got := Resolve(snap, n.ID, h)
				if n.Kind.IsLeafText() && h == "" {
					assert.Equal(t, "{broken", got, "leaf text falls back to the raw value")
				}
			})
		}
	}
}

func TestResolve_InvalidJSONIsConsistentPerKind(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("t", graph.KindTranslator, "not json"),
		node("n", graph.KindNote, "not json"),
	}, nil)

	assert.Equal(t, "", Resolve(snap, "t", ""))
	assert.Equal(t, "not json", Resolve(snap, "n", ""))
}

func TestResolve_RerouteCycleTerminates(t *testing.T) {
	snap := graph.MustSnapshot(
		[]graph.Node{node("a", graph.KindRerouteDot, ""), node("b", graph.KindRerouteDot, "")},
		[]graph.Connection{conn("ab", "a", "", "b", ""), conn("ba", "b", "", "a", "")},
	)
	before := testutil.ToFloat64(cyclesTotal.WithLabelValues(string(graph.KindRerouteDot)))

	assert.Equal(t, "", Resolve(snap, "a", ""))
	assert.Equal(t, "", Resolve(snap, "b", ""))

	after := testutil.ToFloat64(cyclesTotal.WithLabelValues(string(graph.KindRerouteDot)))
	assert.Equal(t, before+2, after)
}

func TestResolve_OnlyCountersChange(t *testing.T) {
	snap := graph.MustSnapshot(
		[]graph.Node{node("t", graph.KindTextInput, "harbor at dawn"), node("d", graph.KindRerouteDot, "")},
		[]graph.Connection{conn("td", "t", "", "d", "")},
	)
	nodes, conns, version := snap.Nodes(), snap.Connections(), snap.Version()
	textBefore := testutil.ToFloat64(resolutionsTotal.WithLabelValues(string(graph.KindTextInput), "value"))
	dotBefore := testutil.ToFloat64(resolutionsTotal.WithLabelValues(string(graph.KindRerouteDot), "value"))

	assert.Equal(t, "harbor at dawn", Resolve(snap, "d", ""))

	assert.Equal(t, nodes, snap.Nodes())
	assert.Equal(t, conns, snap.Connections())
	assert.Equal(t, version, snap.Version())
	assert.Equal(t, textBefore+1, testutil.ToFloat64(resolutionsTotal.WithLabelValues(string(graph.KindTextInput), "value")))
	assert.Equal(t, dotBefore+1, testutil.ToFloat64(resolutionsTotal.WithLabelValues(string(graph.KindRerouteDot), "value")))
}

func TestResolve_AggregatorCycleTerminates(t *testing.T) {
	snap := graph.MustSnapshot(
		[]graph.Node{
			node("g", graph.KindScriptGenerator, `{"visualStyle":"noir"}`),
			node("a", graph.KindScriptAnalyzer, `{}`),
		},
		[]graph.Connection{
			conn("ga", "g", "all-script-data", "a", "script"),
			conn("ag", "a", "all-script-analyzer-data", "g", "script"),
		},
	)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(Resolve(snap, "a", "")), &out))
	assert.Equal(t, "noir", out["visualStyle"])
}

func TestResolve_RerouteWithoutInput(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{node("r", graph.KindRerouteDot, "")}, nil)
	assert.Equal(t, "", Resolve(snap, "r", ""))
}

func TestResolve_Idempotent(t *testing.T) {
	snap := scriptChainSnapshot()
	for _, h := range []string{"", "characters", "style", "scene-0"} {
		first := Resolve(snap, "an", h)
		second := Resolve(snap, "an", h)
		assert.Equal(t, first, second, "handle %q", h)
	}
}

func TestResolve_TextThroughRerouteToTranslator(t *testing.T) {
	snap := graph.MustSnapshot(
		[]graph.Node{
			node("A", graph.KindTextInput, `"hello"`),
			node("B", graph.KindRerouteDot, ""),
			node("C", graph.KindTranslator, `{"targetLanguage":"fr"}`),
		},
		[]graph.Connection{conn("ab", "A", "", "B", ""), conn("bc", "B", "", "C", "text")},
	)

	assert.Equal(t, "hello", ResolveInput(snap, "C", "text"))
	assert.Equal(t, "hello", Resolve(snap, "B", ""))
	assert.Equal(t, "", Resolve(snap, "C", ""), "translator has not produced output yet")
}

func TestResolve_RerouteForwardsUpstreamHandle(t *testing.T) {
	snap := graph.MustSnapshot(
		[]graph.Node{
			node("pa", graph.KindPromptAnalyzer, `{"environment":"forest","style":"noir"}`),
			node("r", graph.KindRerouteDot, ""),
		},
		[]graph.Connection{conn("c", "pa", "style", "r", "")},
	)

	assert.Equal(t, "noir", Resolve(snap, "r", ""))
	assert.Equal(t, "noir", Resolve(snap, "r", "anything"), "reroute ignores the requested handle")
}

func TestResolve_PromptAnalyzerPorts(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("D", graph.KindPromptAnalyzer,
			`{"environment":"forest","characters":["Bob"],"action":"runs","style":"noir"}`),
	}, nil)

	assert.Equal(t, "Bob", Resolve(snap, "D", "character-0"))
	assert.Equal(t, "", Resolve(snap, "D", "character-5"))
	assert.Equal(t, "forest", Resolve(snap, "D", "environment"))
	assert.Equal(t, "runs", Resolve(snap, "D", "action"))
	assert.Equal(t, "noir", Resolve(snap, "D", "style"))
	assert.Equal(t, "", Resolve(snap, "D", "character-x"))
	assert.Equal(t, "", Resolve(snap, "D", "character--1"))
	assert.Equal(t, "", Resolve(snap, "D", "unknown"))
	assert.Equal(t, "forest. Bob. runs. noir", Resolve(snap, "D", ""))
}

func TestResolve_PromptAnalyzerLenientFields(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("objs", graph.KindPromptAnalyzer, `{"environment":"forest","characters":[{"name":"Bob"},{"name":"Alice"}]}`),
		node("typo", graph.KindPromptAnalyzer, `{"environment":"desert","action":42,"style":"noir"}`),
	}, nil)

	assert.Equal(t, "forest", Resolve(snap, "objs", "environment"))
	assert.Equal(t, "Alice", Resolve(snap, "objs", "character-1"))
	assert.Equal(t, "desert", Resolve(snap, "typo", "environment"))
	assert.Equal(t, "noir", Resolve(snap, "typo", "style"))
	assert.Equal(t, "", Resolve(snap, "typo", "action"))
}

func TestResolve_HandleWhitespaceIgnored(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("D", graph.KindPromptAnalyzer, `{"characters":["Bob"]}`),
	}, nil)
	assert.Equal(t, "Bob", Resolve(snap, "D", " character-0 "))
}

func TestResolve_PromptModifierPrefixesDoNotCollide(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("m", graph.KindScriptPromptModifier,
			`{"finalPrompts":[{"sceneNumber":1,"frameNumber":1,"prompt":"still","videoPrompt":"moving"}]}`),
	}, nil)

	assert.Equal(t, "still", Resolve(snap, "m", "prompt-0"))
	assert.Equal(t, "moving", Resolve(snap, "m", "video-prompt-0"))
	assert.Equal(t, "", Resolve(snap, "m", "prompt-1"))
	assert.JSONEq(t, `[{"sceneNumber":1,"frameNumber":1,"prompt":"still","videoPrompt":"moving"}]`,
		Resolve(snap, "m", "all-final-prompts"))
}

func TestResolve_EmptyArraysAreJSONArrays(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("cg", graph.KindCharacterGenerator, ""),
		node("m", graph.KindScriptPromptModifier, ""),
		node("is", graph.KindImageSequenceGenerator, ""),
	}, nil)

	assert.Equal(t, "[]", Resolve(snap, "cg", ""))
	assert.Equal(t, "[]", Resolve(snap, "m", ""))
	assert.Equal(t, "[]", Resolve(snap, "is", ""))
}

func TestResolve_SingleOutputAlias(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("t", graph.KindTranslator, `{"translatedText":"bonjour"}`),
	}, nil)

	assert.Equal(t, "bonjour", Resolve(snap, "t", ""))
	assert.Equal(t, "bonjour", Resolve(snap, "t", "translatedText"))
	assert.Equal(t, "", Resolve(snap, "t", "inputText"))
}

func TestResolve_Chat(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("c", graph.KindChat, `{"messages":[{"role":"user","content":"q"},{"role":"model","content":"a"}]}`),
	}, nil)
	assert.Equal(t, "a", Resolve(snap, "c", ""))
}

func TestResolve_YouTubeTitles(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("y", graph.KindYouTubeTitleGenerator, `{"titles":["One","Two"],"description":"desc","tags":["go","ai"]}`),
	}, nil)

	assert.Equal(t, "Two", Resolve(snap, "y", "title-1"))
	assert.Equal(t, "", Resolve(snap, "y", "title-2"))
	assert.Equal(t, "desc", Resolve(snap, "y", "description"))
	assert.Equal(t, "go, ai", Resolve(snap, "y", "tags"))
	assert.JSONEq(t, `{"titles":["One","Two"],"description":"desc","tags":["go","ai"]}`, Resolve(snap, "y", ""))
}

func TestResolveInput_NoConnection(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{node("t", graph.KindTranslator, "")}, nil)
	assert.Equal(t, "", ResolveInput(snap, "t", "text"))
}

func TestResolve_DoesNotMutateSnapshot(t *testing.T) {
	snap := scriptChainSnapshot()
	nodesBefore := snap.Nodes()
	connsBefore := snap.Connections()

	_ = Resolve(snap, "an", "")
	_ = Resolve(snap, "gen", "all-script-data")

	assert.Equal(t, nodesBefore, snap.Nodes())
	assert.Equal(t, connsBefore, snap.Connections())
}

func TestBehaviors_CoverEveryKind(t *testing.T) {
	for _, k := range graph.AllKinds() {
		_, ok := BehaviorFor(k)
		assert.True(t, ok, "kind %s has no behavior", k)
	}
}

func TestBehaviors_ListedPortsResolve(t *testing.T) {
	populated := map[graph.NodeKind]string{
		graph.KindTextInput:              "hi",
		graph.KindNote:                   "note",
		graph.KindTranslator:             `{"translatedText":"salut"}`,
		graph.KindPromptAnalyzer:         `{"environment":"e","characters":["Bob","Ann"],"action":"a","style":"s"}`,
		graph.KindPromptImprover:         `{"improvedPrompt":"better"}`,
		graph.KindPromptSanitizer:        `{"sanitizedPrompt":"clean"}`,
		graph.KindIdeaGenerator:          `{"ideas":["x","y"]}`,
		graph.KindCharacterGenerator:     `{"characters":[{"name":"Bob"}]}`,
		graph.KindCharacterCard:          `{"name":"Bob","imagePrompt":"p","image":"img"}`,
		graph.KindScriptGenerator:        `{"visualStyle":"noir","characters":[{"name":"Bob"}],"narratorEnabled":true,"scenes":[{"sceneNumber":1,"title":"T","description":"D","narratorText":"N"}]}`,
		graph.KindScriptAnalyzer:         `{"visualStyle":"noir","characters":[{"name":"Bob"}],"scenes":[{"sceneNumber":1,"title":"T","frames":[{"frameNumber":1,"imagePrompt":"P"}]}]}`,
		graph.KindScriptPromptModifier:   `{"finalPrompts":[{"sceneNumber":1,"frameNumber":1,"prompt":"p","videoPrompt":"v"}]}`,
		graph.KindImageInput:             `{"image":"img"}`,
		graph.KindImageGenerator:         `{"image":"img"}`,
		graph.KindImageEditor:            `{"image":"img"}`,
		graph.KindImageSequenceGenerator: `{"images":["a","b"]}`,
		graph.KindAudioGenerator:         `{"audio":"snd"}`,
		graph.KindYouTubeTitleGenerator:  `{"titles":["t"],"description":"d","tags":["x"]}`,
		graph.KindYouTubeAnalytics:       `{"report":"r"}`,
		graph.KindChat:                   `{"messages":[{"role":"model","content":"a"}]}`,
		graph.KindDataReader:             `{"content":"c"}`,
	}

	for kind, value := range populated {
		t.Run(string(kind), func(t *testing.T) {
			n := node("n", kind, value)
			snap := graph.MustSnapshot([]graph.Node{n}, nil)
			ports := PortsOf(n)
			require.NotEmpty(t, ports)
			for _, p := range ports {
				assert.NotEmpty(t, Resolve(snap, "n", p.ID), "port %q", p.ID)
			}
		})
	}
}

func TestPortsOf_UnknownKind(t *testing.T) {
	assert.Nil(t, PortsOf(graph.Node{ID: "x", Kind: "NOPE"}))
}

func TestResolve_CharacterCardAndGenerator(t *testing.T) {
	snap := graph.MustSnapshot([]graph.Node{
		node("cg", graph.KindCharacterGenerator, `{"characters":[{"name":"Bob","description":"tall"},{"name":"Ann"}]}`),
		node("cc", graph.KindCharacterCard, `{"name":"Ann","imagePrompt":"portrait of Ann"}`),
	}, nil)

	var bob payload.Character
	require.NoError(t, json.Unmarshal([]byte(Resolve(snap, "cg", "character-0")), &bob))
	assert.Equal(t, "tall", bob.Description)
	assert.Equal(t, "", Resolve(snap, "cg", "character-2"))
	assert.Equal(t, "portrait of Ann", Resolve(snap, "cc", "prompt"))
	assert.Equal(t, "", Resolve(snap, "cc", "image"))
}
