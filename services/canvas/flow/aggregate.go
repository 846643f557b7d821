// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

import (
	"encoding/json"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
)

// =============================================================================
// Upstream data for aggregator kinds
// =============================================================================

// upstream is what an aggregator inherits from its inputs.
type upstream struct {
	Request        string
	TargetLanguage string
	VisualStyle    string
	Characters     []payload.Character
	Scenes         []payload.Scene
	AnalyzedScenes []payload.AnalyzedScene
}

// scriptData is the loose shape of an aggregator's "all data" output, as
// read back by a downstream aggregator.
type scriptData struct {
	Request        string          `json:"request"`
	TargetLanguage string          `json:"targetLanguage"`
	VisualStyle    string          `json:"visualStyle"`
	Style          string          `json:"style"`
	Characters     json.RawMessage `json:"characters"`
	Scenes         json.RawMessage `json:"scenes"`
}

// gather reads the aggregator's inputs.
//
// Explicit ports ("prompt", "characters", "style") are read first and take
// precedence; a whole script arriving on "script" or the default input fills
// whatever they left empty. Each input is resolved on its own copy of the
// visited set.
func gather(s *Scope) upstream {
	var up upstream

	if v, ok := s.Input(InputPrompt); ok {
		up.Request = strings.TrimSpace(v)
	}
	if v, ok := s.Input(HandleCharacters); ok {
		up.Characters = payload.ParseCharacters(v)
	}
	if v, ok := s.Input(HandleStyle); ok {
		up.VisualStyle = styleFrom(v)
	}

	for _, port := range []string{InputScript, HandleDefault} {
		v, ok := s.Input(port)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		var sd scriptData
		if err := json.Unmarshal([]byte(v), &sd); err != nil {
			up.Request = inherit(up.Request, strings.TrimSpace(v))
			continue
		}
		up.Request = inherit(up.Request, sd.Request)
		up.TargetLanguage = inherit(up.TargetLanguage, sd.TargetLanguage)
		up.VisualStyle = inherit(up.VisualStyle, inherit(sd.VisualStyle, sd.Style))
		if len(sd.Characters) > 0 {
			up.Characters = payload.MergeCharacters(up.Characters, payload.ParseCharacters(string(sd.Characters)))
		}
		if len(up.Scenes) == 0 && len(up.AnalyzedScenes) == 0 && len(sd.Scenes) > 0 {
			// Malformed scene arrays are ignored; both views decode from
			// the same raw array.
			_ = json.Unmarshal(sd.Scenes, &up.Scenes)
			_ = json.Unmarshal(sd.Scenes, &up.AnalyzedScenes)
		}
	}
	return up
}

// styleFrom accepts either plain style text or an aggregator's JSON output.
func styleFrom(v string) string {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "{") {
		var sd scriptData
		if err := json.Unmarshal([]byte(trimmed), &sd); err == nil {
			return inherit(sd.VisualStyle, sd.Style)
		}
	}
	return trimmed
}

// inherit is the scalar merge rule: local wins if non-empty.
func inherit(local, inherited string) string {
	if strings.TrimSpace(local) != "" {
		return local
	}
	return inherited
}

// =============================================================================
// SCRIPT_GENERATOR
// =============================================================================

type scriptGenerator struct{}

// effective merges the generator's own payload with its inputs.
func (scriptGenerator) effective(s *Scope, local *payload.ScriptGenerator) *payload.ScriptGenerator {
	up := gather(s)
	merged := *local
	merged.Request = inherit(local.Request, up.Request)
	merged.TargetLanguage = inherit(local.TargetLanguage, up.TargetLanguage)
	merged.VisualStyle = inherit(local.VisualStyle, up.VisualStyle)
	merged.Characters = nonNil(payload.MergeCharacters(local.Characters, up.Characters))
	if len(local.Scenes) == 0 {
		merged.Scenes = up.Scenes
	}
	merged.Scenes = nonNil(merged.Scenes)
	return &merged
}

func (b scriptGenerator) ResolvePort(s *Scope, p payload.Payload, handle string) string {
	sg, ok := p.(*payload.ScriptGenerator)
	if !ok {
		return ""
	}
	switch handle {
	case HandleDefault, HandleAllScriptData:
		return payload.JSON(b.effective(s, sg))
	case HandleCharacters:
		return payload.JSON(b.effective(s, sg).Characters)
	case HandleStyle:
		return b.effective(s, sg).VisualStyle
	}
	if i, ok := indexed(handle, PrefixScene); ok {
		scene, found := at(b.effective(s, sg).Scenes, i)
		if !found {
			return ""
		}
		return scene.Text()
	}
	if i, ok := indexed(handle, PrefixNarrator); ok {
		scene, _ := at(b.effective(s, sg).Scenes, i)
		return scene.NarratorText
	}
	return ""
}

func (scriptGenerator) Ports(p payload.Payload) []Port {
	sg, ok := p.(*payload.ScriptGenerator)
	if !ok {
		return nil
	}
	ports := []Port{
		{ID: HandleAllScriptData, Label: "All script data"},
		{ID: HandleCharacters, Label: "Characters"},
		{ID: HandleStyle, Label: "Style"},
	}
	for i, scene := range sg.Scenes {
		ports = append(ports, Port{ID: portID(PrefixScene, i), Label: numbered("Scene", i, scene.Title)})
		if sg.NarratorEnabled {
			ports = append(ports, Port{ID: portID(PrefixNarrator, i), Label: numbered("Narrator", i, "")})
		}
	}
	return ports
}

// =============================================================================
// SCRIPT_ANALYZER
// =============================================================================

type scriptAnalyzer struct{}

// effective merges the analyzer's own payload with its inputs. Scenes are
// replaced as a whole: the local list if it has entries, else the inherited
// one.
func (scriptAnalyzer) effective(s *Scope, local *payload.ScriptAnalyzer) *payload.ScriptAnalyzer {
	up := gather(s)
	merged := *local
	merged.VisualStyle = inherit(local.VisualStyle, up.VisualStyle)
	merged.Characters = nonNil(payload.MergeCharacters(local.Characters, up.Characters))
	if len(local.Scenes) == 0 {
		merged.Scenes = up.AnalyzedScenes
	}
	merged.Scenes = nonNil(merged.Scenes)
	return &merged
}

func (b scriptAnalyzer) ResolvePort(s *Scope, p payload.Payload, handle string) string {
	sa, ok := p.(*payload.ScriptAnalyzer)
	if !ok {
		return ""
	}
	switch handle {
	case HandleDefault, HandleAllAnalyzerData:
		return payload.JSON(b.effective(s, sa))
	case HandleCharacters:
		return payload.JSON(b.effective(s, sa).Characters)
	case HandleStyle:
		return b.effective(s, sa).VisualStyle
	}
	if i, ok := indexed(handle, PrefixScene); ok {
		scene, found := at(b.effective(s, sa).Scenes, i)
		if !found {
			return ""
		}
		prompts := make([]string, 0, len(scene.Frames))
		for _, f := range scene.Frames {
			if v := strings.TrimSpace(f.ImagePrompt); v != "" {
				prompts = append(prompts, v)
			}
		}
		return strings.Join(prompts, "\n")
	}
	return ""
}

func (scriptAnalyzer) Ports(p payload.Payload) []Port {
	sa, ok := p.(*payload.ScriptAnalyzer)
	if !ok {
		return nil
	}
	ports := []Port{
		{ID: HandleAllAnalyzerData, Label: "All analyzer data"},
		{ID: HandleCharacters, Label: "Characters"},
		{ID: HandleStyle, Label: "Style"},
	}
	for i, scene := range sa.Scenes {
		ports = append(ports, Port{ID: portID(PrefixScene, i), Label: numbered("Scene", i, scene.Title)})
	}
	return ports
}
