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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
)

// System instructions per generation handler. JSON-mode prompts name the
// exact object shape the handler decodes.
const (
	systemTranslate = "You are a professional translator. Translate the user's text into %s. " +
		"Reply with the translation only."

	systemImprove = "You rewrite prompts for image generation models. Make the user's prompt " +
		"vivid and specific: subject, setting, lighting, composition, style. " +
		"Reply with the improved prompt only."

	systemSanitize = "You rewrite prompts so an image model with a strict content policy will accept them. " +
		"Remove or soften violent, sexual, hateful and trademarked content while keeping the scene. " +
		"Reply with the rewritten prompt only."

	systemIdeas = `You brainstorm video ideas. Reply with JSON: {"ideas":[{"title":"...","description":"..."}]}.`

	systemCharacters = "You design characters for illustrated stories. Reply with JSON: " +
		`{"characters":[{"name":"...","description":"...","imagePrompt":"..."}]}. ` +
		"imagePrompt is a self-contained portrait prompt."

	systemTitles = "You write YouTube metadata. Reply with JSON: " +
		`{"titles":["..."],"description":"...","tags":["..."]}. Give five titles and at most fifteen tags.`

	systemScript = "You write short scene-by-scene video scripts. Reply with JSON: " +
		`{"scenes":[{"sceneNumber":1,"title":"...","description":"...","narratorText":"..."}],` +
		`"characters":[{"name":"...","description":"..."}]}. ` +
		"Leave narratorText empty unless narration is requested."

	systemAnalyze = "You storyboard scripts. Break every scene into frames and write one image prompt per frame. " +
		"Reply with JSON: " +
		`{"scenes":[{"sceneNumber":1,"title":"...","frames":[{"frameNumber":1,"description":"...","imagePrompt":"..."}]}]}.`

	systemModify = "You finalize storyboard prompts. For every frame write a final image prompt that restates " +
		"each character's appearance and the visual style, and a short video prompt describing the motion. " +
		"Reply with JSON: " +
		`{"finalPrompts":[{"sceneNumber":1,"frameNumber":1,"prompt":"...","videoPrompt":"..."}]}.`
)

const (
	defaultLanguage   = "English"
	defaultIdeaCount  = 5
	defaultCharacters = 3
	defaultSceneCount = 5
)

// scriptPrompt builds the user prompt for a script generation.
func scriptPrompt(sg *payload.ScriptGenerator) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", sg.Request)
	count := sg.SceneCount
	if count <= 0 {
		count = defaultSceneCount
	}
	fmt.Fprintf(&b, "Scenes: %d\n", count)
	if sg.TargetLanguage != "" {
		fmt.Fprintf(&b, "Language: %s\n", sg.TargetLanguage)
	}
	if sg.VisualStyle != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", sg.VisualStyle)
	}
	if sg.NarratorEnabled {
		b.WriteString("Narration: write narratorText for every scene.\n")
	}
	writeCharacters(&b, sg.Characters)
	return b.String()
}

// storyboardPrompt builds the user prompt for a storyboard breakdown.
func storyboardPrompt(scenes []payload.Scene, characters []payload.Character, style string) string {
	var b strings.Builder
	if style != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", style)
	}
	writeCharacters(&b, characters)
	b.WriteString("Script:\n")
	for i, s := range scenes {
		n := s.SceneNumber
		if n == 0 {
			n = i + 1
		}
		fmt.Fprintf(&b, "Scene %d: %s\n%s\n", n, s.Title, s.Description)
	}
	return b.String()
}

// finalizePrompt builds the user prompt for final prompt generation.
func finalizePrompt(scenes []payload.AnalyzedScene, characters []payload.Character, style string) string {
	var b strings.Builder
	if style != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", style)
	}
	writeCharacters(&b, characters)
	b.WriteString("Frames:\n")
	for _, s := range scenes {
		for _, f := range s.Frames {
			fmt.Fprintf(&b, "Scene %d frame %d: %s\n", s.SceneNumber, f.FrameNumber, f.ImagePrompt)
		}
	}
	return b.String()
}

func writeCharacters(b *strings.Builder, characters []payload.Character) {
	if len(characters) == 0 {
		return
	}
	b.WriteString("Characters:\n")
	for _, c := range characters {
		fmt.Fprintf(b, "- %s: %s\n", c.Name, c.Description)
	}
}
