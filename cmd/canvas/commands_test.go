// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/catalog"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/flow"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a mock-provider config with on-disk storage in a temp
// directory and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "canvas.yaml")
	cfg := "storage:\n  path: " + filepath.Join(dir, "db") + "\n" +
		"generation:\n  provider: mock\n  requests_per_second: 0\n" +
		"logging:\n  level: error\n  format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

// execute runs the command tree built around a and returns stdout.
func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cmd := newCommandTree(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCanvas(t *testing.T, nodes []graph.Node, conns []graph.Connection) string {
	t.Helper()
	snap, err := graph.NewSnapshot(nodes, conns)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "story.json")
	require.NoError(t, graph.SaveFile(path, snap))
	return path
}

func nodeValue(t *testing.T, path, id string, v any) {
	t.Helper()
	snap, err := graph.LoadFile(path)
	require.NoError(t, err)
	n, ok := snap.Node(id)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(n.Value), v))
}

func TestResolveCommand(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{
			{ID: "t", Kind: graph.KindTextInput, Value: "a lighthouse at night", Height: 200},
			{ID: "dot", Kind: graph.KindRerouteDot},
		},
		[]graph.Connection{{ID: "c1", FromNodeID: "t", ToNodeID: "dot"}},
	)

	out, err := execute(t, &app{}, "--config", cfg, "resolve", path, "dot")
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse at night\n", out)

	out, err = execute(t, &app{}, "--config", cfg, "resolve", path, "missing")
	require.NoError(t, err)
	assert.Equal(t, "\n", out)
}

func TestLayoutCommand(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{{ID: "d", Kind: graph.KindPromptAnalyzer, Value: `{}`, Height: 200}},
		nil,
	)

	out, err := execute(t, &app{}, "--config", cfg, "layout", path, "d")
	require.NoError(t, err)

	var ports []flow.PortPosition
	require.NoError(t, json.Unmarshal([]byte(out), &ports))
	require.Len(t, ports, 3)
	assert.Equal(t, "environment", ports[0].PortID)
	assert.Equal(t, 77.5, ports[0].YOffset)

	_, err = execute(t, &app{}, "--config", cfg, "layout", path, "nope")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestRunCommand_WritesResultIntoFile(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{{ID: "tr", Kind: graph.KindTranslator, Value: `{"inputText":"hola"}`, Height: 200}},
		nil,
	)

	out, err := execute(t, &app{}, "--config", cfg, "run", path, "tr")
	require.NoError(t, err)
	assert.Contains(t, out, "mock: hola")

	var got payload.Translator
	nodeValue(t, path, "tr", &got)
	assert.Equal(t, "mock: hola", got.TranslatedText)
	assert.Empty(t, got.Error)
}

func TestRunCommand_DryRunLeavesFile(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{{ID: "tr", Kind: graph.KindTranslator, Value: `{"inputText":"hola"}`, Height: 200}},
		nil,
	)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = execute(t, &app{}, "--config", cfg, "run", "--dry-run", path, "tr")
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRunCommand_FailureIsRecordedOnNode(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{{ID: "tr", Kind: graph.KindTranslator, Value: `{"inputText":"hola"}`, Height: 200}},
		nil,
	)
	gen := llm.NewMockGenerator().QueueError(&llm.ServiceError{Op: "text", Category: llm.ErrQuota})

	_, err := execute(t, &app{gen: gen}, "--config", cfg, "run", path, "tr")
	require.ErrorIs(t, err, llm.ErrQuota)

	var got payload.Translator
	nodeValue(t, path, "tr", &got)
	assert.NotEmpty(t, got.Error)
}

func TestChainCommand(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{
			{ID: "gen", Kind: graph.KindScriptGenerator, Value: `{"request":"a day of a baker"}`, Height: 200},
			{ID: "an", Kind: graph.KindScriptAnalyzer, Value: `{}`, Height: 200},
			{ID: "mod", Kind: graph.KindScriptPromptModifier, Value: `{}`, Height: 200},
		},
		[]graph.Connection{
			{ID: "c1", FromNodeID: "gen", FromHandleID: "all-script-data", ToNodeID: "an", ToHandleID: "script"},
			{ID: "c2", FromNodeID: "an", FromHandleID: "all-script-analyzer-data", ToNodeID: "mod", ToHandleID: "script"},
		},
	)
	gen := llm.NewMockGenerator().
		QueueText(`{"scenes":[{"title":"Dawn","description":"Bob wakes early"}],"characters":[{"name":"Bob"}]}`).
		QueueText(`{"scenes":[{"sceneNumber":1,"title":"Dawn","frames":[{"description":"bed","imagePrompt":"Bob asleep"}]}]}`).
		QueueText(`{"finalPrompts":[{"sceneNumber":1,"frameNumber":1,"prompt":"Bob asleep, ink"}]}`)

	out, err := execute(t, &app{gen: gen}, "--config", cfg, "chain", path, "mod")
	require.NoError(t, err)
	assert.Contains(t, out, "chain completed: 3 step(s)")
	assert.Equal(t, 6, strings.Count("\n"+out, "\n  "), "one line per step event:\n%s", out)

	var mod payload.ScriptPromptModifier
	nodeValue(t, path, "mod", &mod)
	require.Len(t, mod.FinalPrompts, 1)
	assert.Equal(t, "Bob asleep, ink", mod.FinalPrompts[0].Prompt)
}

func TestChainCommand_NotChainable(t *testing.T) {
	cfg := writeConfig(t)
	path := writeCanvas(t,
		[]graph.Node{{ID: "t", Kind: graph.KindTextInput, Value: "x"}},
		nil,
	)
	_, err := execute(t, &app{}, "--config", cfg, "chain", path, "t")
	assert.Error(t, err)
}

func TestCatalogCommands_ImportListExport(t *testing.T) {
	cfg := writeConfig(t)
	exp := catalog.Export{
		App:     graph.AppName,
		Context: catalog.CatalogContext,
		Version: catalog.ExportVersion,
		Entries: []catalog.Entry{{
			ID:    "entry-1",
			Name:  "Hero kit",
			Nodes: []graph.Node{{ID: "n1", Kind: graph.KindCharacterCard, Value: `{}`}},
		}},
	}
	raw, err := json.Marshal(exp)
	require.NoError(t, err)
	in := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, os.WriteFile(in, raw, 0o600))

	out, err := execute(t, &app{}, "--config", cfg, "catalog", "import", in)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 entries\n", out)

	out, err = execute(t, &app{}, "--config", cfg, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "entry-1")
	assert.Contains(t, out, "Hero kit")

	dst := filepath.Join(t.TempDir(), "export.json")
	_, err = execute(t, &app{}, "--config", cfg, "catalog", "export", dst)
	require.NoError(t, err)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	var got catalog.Export
	require.NoError(t, json.NewDecoder(f).Decode(&got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "Hero kit", got.Entries[0].Name)
}

func TestCatalogImport_RejectsForeignFile(t *testing.T) {
	cfg := writeConfig(t)
	in := filepath.Join(t.TempDir(), "foreign.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"app":"other","context":"catalog","version":1}`), 0o600))

	_, err := execute(t, &app{}, "--config", cfg, "catalog", "import", in)
	assert.ErrorIs(t, err, catalog.ErrForeignExport)
}

func TestInvalidConfigIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generation:\n  provider: carrier-pigeon\n"), 0o600))

	_, err := execute(t, &app{}, "--config", path, "resolve", "x.json", "n")
	assert.Error(t, err)
}

func TestServe_WatchRequiresCanvas(t *testing.T) {
	cfg := writeConfig(t)
	_, err := execute(t, &app{}, "--config", cfg, "serve", "--watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch requires --canvas")
}
