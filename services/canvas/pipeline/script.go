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

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/flow"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
)

// Script chain handlers. Each one reads the merged view of its own node
// (local values plus whatever it inherits through connections) so a run
// sees exactly what the editor shows on the node's "all data" port.

// generateScript writes the scene list of a SCRIPT_GENERATOR.
func generateScript(ctx context.Context, g llm.Generator, j job, p *payload.ScriptGenerator) (func(*payload.ScriptGenerator), error) {
	var eff payload.ScriptGenerator
	_ = json.Unmarshal([]byte(flow.Resolve(j.snap, j.node.ID, flow.HandleAllScriptData)), &eff)
	if strings.TrimSpace(eff.Request) == "" {
		return nil, ErrMissingInput
	}
	eff.SceneCount = p.SceneCount
	eff.NarratorEnabled = p.NarratorEnabled

	var out struct {
		Scenes     []payload.Scene `json:"scenes"`
		Characters json.RawMessage `json:"characters"`
	}
	if err := jsonText(ctx, g, "script", systemScript, scriptPrompt(&eff), &out); err != nil {
		return nil, err
	}
	if len(out.Scenes) == 0 {
		return nil, llm.Malformed("script", errEmptyOutput)
	}
	for i := range out.Scenes {
		if out.Scenes[i].SceneNumber == 0 {
			out.Scenes[i].SceneNumber = i + 1
		}
	}
	generated := payload.ParseCharacters(string(out.Characters))
	return func(p *payload.ScriptGenerator) {
		p.Scenes = out.Scenes
		if len(generated) > 0 {
			p.Characters = payload.MergeCharacters(p.Characters, generated)
		}
	}, nil
}

// analyzeScript breaks the upstream script into frames.
func analyzeScript(ctx context.Context, g llm.Generator, j job, p *payload.ScriptAnalyzer) (func(*payload.ScriptAnalyzer), error) {
	scenes := scenesFrom(j.input(flow.InputScript, flow.HandleDefault))
	if len(scenes) == 0 {
		return nil, ErrMissingInput
	}
	var eff payload.ScriptAnalyzer
	_ = json.Unmarshal([]byte(flow.Resolve(j.snap, j.node.ID, flow.HandleAllAnalyzerData)), &eff)

	var out struct {
		Scenes []payload.AnalyzedScene `json:"scenes"`
	}
	prompt := storyboardPrompt(scenes, eff.Characters, eff.VisualStyle)
	if err := jsonText(ctx, g, "analyze script", systemAnalyze, prompt, &out); err != nil {
		return nil, err
	}
	if frameCount(out.Scenes) == 0 {
		return nil, llm.Malformed("analyze script", errEmptyOutput)
	}
	for i := range out.Scenes {
		if out.Scenes[i].SceneNumber == 0 {
			out.Scenes[i].SceneNumber = i + 1
		}
		for k := range out.Scenes[i].Frames {
			if out.Scenes[i].Frames[k].FrameNumber == 0 {
				out.Scenes[i].Frames[k].FrameNumber = k + 1
			}
		}
	}
	return func(p *payload.ScriptAnalyzer) {
		p.Scenes = out.Scenes
	}, nil
}

// modifyPrompts writes the final per-frame prompts from upstream analyzer data.
func modifyPrompts(ctx context.Context, g llm.Generator, j job, p *payload.ScriptPromptModifier) (func(*payload.ScriptPromptModifier), error) {
	var data struct {
		Scenes      []payload.AnalyzedScene `json:"scenes"`
		Characters  json.RawMessage         `json:"characters"`
		VisualStyle string                  `json:"visualStyle"`
	}
	src := j.input(flow.InputScript, flow.HandleDefault)
	if err := json.Unmarshal([]byte(src), &data); err != nil || frameCount(data.Scenes) == 0 {
		return nil, ErrMissingInput
	}

	var out struct {
		FinalPrompts []payload.FinalPrompt `json:"finalPrompts"`
	}
	prompt := finalizePrompt(data.Scenes, payload.ParseCharacters(string(data.Characters)), data.VisualStyle)
	if err := jsonText(ctx, g, "modify prompts", systemModify, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.FinalPrompts) == 0 {
		return nil, llm.Malformed("modify prompts", errEmptyOutput)
	}
	return func(p *payload.ScriptPromptModifier) {
		p.FinalPrompts = out.FinalPrompts
	}, nil
}

// scenesFrom reads script scenes from an upstream value. Plain text
// becomes a single scene.
func scenesFrom(v string) []payload.Scene {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var script struct {
		Scenes []payload.Scene `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(v), &script); err == nil {
		return script.Scenes
	}
	if strings.HasPrefix(v, "{") || strings.HasPrefix(v, "[") {
		return nil
	}
	return []payload.Scene{{SceneNumber: 1, Description: v}}
}

func frameCount(scenes []payload.AnalyzedScene) int {
	n := 0
	for _, s := range scenes {
		n += len(s.Frames)
	}
	return n
}
