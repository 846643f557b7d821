// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package payload

import (
	"encoding/json"
	"strings"
)

// Chat roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Character is a named person or creature shared across script nodes.
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImagePrompt string `json:"imagePrompt,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Key is the natural key used to deduplicate characters: the trimmed,
// lower-cased name.
func (c Character) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// Scene is one scene of a generated script.
type Scene struct {
	SceneNumber  int    `json:"sceneNumber"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	NarratorText string `json:"narratorText,omitempty"`
}

// Text is the scene's visible content: the description, or the title if
// there is none.
func (s Scene) Text() string {
	if strings.TrimSpace(s.Description) != "" {
		return s.Description
	}
	return s.Title
}

// Frame is one shot within an analyzed scene.
type Frame struct {
	FrameNumber int    `json:"frameNumber"`
	Description string `json:"description"`
	ImagePrompt string `json:"imagePrompt"`
}

// AnalyzedScene is a scene broken into frames.
type AnalyzedScene struct {
	SceneNumber int     `json:"sceneNumber"`
	Title       string  `json:"title"`
	Frames      []Frame `json:"frames"`
}

// FinalPrompt is the finished image and video prompt for one frame.
type FinalPrompt struct {
	SceneNumber int    `json:"sceneNumber"`
	FrameNumber int    `json:"frameNumber"`
	Prompt      string `json:"prompt"`
	VideoPrompt string `json:"videoPrompt,omitempty"`
}

// Idea is one brainstormed idea.
type Idea struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare string.
func (i *Idea) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*i = Idea{Title: s}
		return nil
	}
	type plain Idea
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = Idea(p)
	return nil
}

// UnmarshalJSON accepts characters as names or as character objects.
func (p *PromptAnalyzer) UnmarshalJSON(b []byte) error {
	type plain PromptAnalyzer
	var v struct {
		plain
		Characters json.RawMessage `json:"characters"`
	}
	err := json.Unmarshal(b, &v)
	*p = PromptAnalyzer(v.plain)
	p.Characters = nil
	if raw := strings.TrimSpace(string(v.Characters)); raw != "" && raw != "null" {
		p.Characters = CharacterNames(ParseCharacters(raw))
	}
	return err
}

// Text renders the idea as one line.
func (i Idea) Text() string {
	if i.Description == "" {
		return i.Title
	}
	if i.Title == "" {
		return i.Description
	}
	return i.Title + ": " + i.Description
}

// ChatMessage is one turn of a chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// Character helpers
// =============================================================================

// ParseCharacters reads characters delivered over a connection.
//
// Description:
//
//	Upstream nodes deliver characters in several shapes: a JSON array of
//	character objects, a JSON array of names, a single character object, or
//	plain text naming one character. Entries without a name are dropped.
//	Blank input yields nil.
func ParseCharacters(text string) []Character {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var objs []Character
	if err := json.Unmarshal([]byte(trimmed), &objs); err == nil {
		return named(objs)
	}

	var names []string
	if err := json.Unmarshal([]byte(trimmed), &names); err == nil {
		out := make([]Character, 0, len(names))
		for _, n := range names {
			out = append(out, Character{Name: n})
		}
		return named(out)
	}

	var one Character
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &one); err == nil && one.Key() != "" {
			return []Character{one}
		}
		// Objects like {"characters":[...]} from an aggregator port.
		var wrapped struct {
			Characters []Character `json:"characters"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
			return named(wrapped.Characters)
		}
		return nil
	}

	return []Character{{Name: trimmed}}
}

func named(cs []Character) []Character {
	out := make([]Character, 0, len(cs))
	for _, c := range cs {
		if c.Key() != "" {
			out = append(out, c)
		}
	}
	return out
}

// MergeCharacters returns local followed by every upstream character whose
// key is not already present. Neither input is modified.
func MergeCharacters(local, upstream []Character) []Character {
	out := make([]Character, 0, len(local)+len(upstream))
	seen := make(map[string]struct{}, len(local)+len(upstream))
	for _, c := range local {
		out = append(out, c)
		if k := c.Key(); k != "" {
			seen[k] = struct{}{}
		}
	}
	for _, c := range upstream {
		k := c.Key()
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// CharacterNames returns the names of cs in order.
func CharacterNames(cs []Character) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}
