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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
)

// Port is one output port of a node.
type Port struct {
	ID    string `json:"portId"`
	Label string `json:"label"`
}

// Behavior is the per-kind capability shared by the resolver and the
// layout helper.
type Behavior interface {
	// ResolvePort returns the value of output port handle. p is the node's
	// decoded payload and always matches the behavior's kind. Unknown
	// handles return "".
	ResolvePort(s *Scope, p payload.Payload, handle string) string

	// Ports lists the node's output ports in display order. Every listed
	// id is accepted by ResolvePort.
	Ports(p payload.Payload) []Port
}

var behaviors = map[graph.NodeKind]Behavior{
	graph.KindTextInput:              leafText{},
	graph.KindNote:                   leafText{},
	graph.KindRerouteDot:             passThrough{},
	graph.KindTranslator:             singleOutput[*payload.Translator]{label: "Translation", field: func(p *payload.Translator) string { return p.TranslatedText }, alias: "translatedText"},
	graph.KindPromptAnalyzer:         promptAnalyzer{},
	graph.KindPromptImprover:         singleOutput[*payload.PromptImprover]{label: "Improved prompt", field: func(p *payload.PromptImprover) string { return p.ImprovedPrompt }, alias: "improvedPrompt"},
	graph.KindPromptSanitizer:        singleOutput[*payload.PromptSanitizer]{label: "Sanitized prompt", field: func(p *payload.PromptSanitizer) string { return p.SanitizedPrompt }, alias: "sanitizedPrompt"},
	graph.KindIdeaGenerator:          ideaGenerator{},
	graph.KindCharacterGenerator:     characterGenerator{},
	graph.KindCharacterCard:          characterCard{},
	graph.KindScriptGenerator:        scriptGenerator{},
	graph.KindScriptAnalyzer:         scriptAnalyzer{},
	graph.KindScriptPromptModifier:   promptModifier{},
	graph.KindImageInput:             singleOutput[*payload.ImageInput]{label: "Image", field: func(p *payload.ImageInput) string { return p.Image }, alias: HandleImage},
	graph.KindImageGenerator:         singleOutput[*payload.ImageGenerator]{label: "Image", field: func(p *payload.ImageGenerator) string { return p.Image }, alias: HandleImage},
	graph.KindImageEditor:            singleOutput[*payload.ImageEditor]{label: "Image", field: func(p *payload.ImageEditor) string { return p.Image }, alias: HandleImage},
	graph.KindImageSequenceGenerator: imageSequence{},
	graph.KindAudioGenerator:         singleOutput[*payload.AudioGenerator]{label: "Audio", field: func(p *payload.AudioGenerator) string { return p.Audio }, alias: "audio"},
	graph.KindYouTubeTitleGenerator:  youTubeTitles{},
	graph.KindYouTubeAnalytics:       singleOutput[*payload.YouTubeAnalytics]{label: "Report", field: func(p *payload.YouTubeAnalytics) string { return p.Report }, alias: "report"},
	graph.KindChat:                   singleOutput[*payload.Chat]{label: "Last reply", field: (*payload.Chat).LastModelMessage},
	graph.KindDataReader:             singleOutput[*payload.DataReader]{label: "Content", field: func(p *payload.DataReader) string { return p.Content }, alias: "content"},
}

// BehaviorFor returns the behavior registered for kind.
func BehaviorFor(kind graph.NodeKind) (Behavior, bool) {
	b, ok := behaviors[kind]
	return b, ok
}

// PortsOf lists the output ports of n, decoded from its current value.
func PortsOf(n graph.Node) []Port {
	b, ok := BehaviorFor(n.Kind)
	if !ok {
		return nil
	}
	p, _ := payload.DecodeNode(n)
	if p == nil {
		return nil
	}
	return b.Ports(p)
}

// =============================================================================
// Leaf, pass-through and single-output kinds
// =============================================================================

type leafText struct{}

func (leafText) ResolvePort(_ *Scope, p payload.Payload, _ string) string {
	t, ok := p.(*payload.Text)
	if !ok {
		return ""
	}
	return t.Text
}

func (leafText) Ports(payload.Payload) []Port {
	return []Port{{ID: HandleDefault, Label: "Text"}}
}

type passThrough struct{}

func (passThrough) ResolvePort(s *Scope, _ payload.Payload, _ string) string {
	return s.Forward()
}

func (passThrough) Ports(payload.Payload) []Port {
	return []Port{{ID: HandleDefault}}
}

// singleOutput exposes one field on the default port. alias, if set, is
// accepted as a second name for that port.
type singleOutput[P payload.Payload] struct {
	label string
	field func(P) string
	alias string
}

func (b singleOutput[P]) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	typed, ok := p.(P)
	if !ok {
		return ""
	}
	if handle != HandleDefault && (b.alias == "" || handle != b.alias) {
		return ""
	}
	return b.field(typed)
}

func (b singleOutput[P]) Ports(payload.Payload) []Port {
	return []Port{{ID: HandleDefault, Label: b.label}}
}

// =============================================================================
// Multi-port kinds
// =============================================================================

type promptAnalyzer struct{}

func (promptAnalyzer) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	pa, ok := p.(*payload.PromptAnalyzer)
	if !ok {
		return ""
	}
	switch handle {
	case HandleDefault:
		return composePrompt(pa)
	case HandleEnvironment:
		return pa.Environment
	case HandleAction:
		return pa.Action
	case HandleStyle:
		return pa.Style
	}
	if i, ok := indexed(handle, PrefixCharacter); ok {
		c, _ := at(pa.Characters, i)
		return c
	}
	return ""
}

func (promptAnalyzer) Ports(p payload.Payload) []Port {
	pa, ok := p.(*payload.PromptAnalyzer)
	if !ok {
		return nil
	}
	ports := []Port{
		{ID: HandleEnvironment, Label: "Environment"},
		{ID: HandleAction, Label: "Action"},
		{ID: HandleStyle, Label: "Style"},
	}
	for i, name := range pa.Characters {
		ports = append(ports, Port{ID: portID(PrefixCharacter, i), Label: numbered("Character", i, name)})
	}
	return ports
}

// composePrompt joins the non-empty analysis fields into one prompt.
func composePrompt(pa *payload.PromptAnalyzer) string {
	var parts []string
	if v := strings.TrimSpace(pa.Environment); v != "" {
		parts = append(parts, v)
	}
	var names []string
	for _, c := range pa.Characters {
		if c = strings.TrimSpace(c); c != "" {
			names = append(names, c)
		}
	}
	if len(names) > 0 {
		parts = append(parts, strings.Join(names, ", "))
	}
	for _, v := range []string{pa.Action, pa.Style} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ". ")
}

type ideaGenerator struct{}

func (ideaGenerator) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	ig, ok := p.(*payload.IdeaGenerator)
	if !ok {
		return ""
	}
	if handle == HandleDefault {
		lines := make([]string, 0, len(ig.Ideas))
		for _, idea := range ig.Ideas {
			lines = append(lines, idea.Text())
		}
		return strings.Join(lines, "\n")
	}
	if i, ok := indexed(handle, PrefixIdea); ok {
		idea, _ := at(ig.Ideas, i)
		return idea.Text()
	}
	return ""
}

func (ideaGenerator) Ports(p payload.Payload) []Port {
	ig, ok := p.(*payload.IdeaGenerator)
	if !ok {
		return nil
	}
	ports := make([]Port, 0, len(ig.Ideas))
	for i, idea := range ig.Ideas {
		ports = append(ports, Port{ID: portID(PrefixIdea, i), Label: numbered("Idea", i, idea.Title)})
	}
	return ports
}

type characterGenerator struct{}

func (characterGenerator) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	cg, ok := p.(*payload.CharacterGenerator)
	if !ok {
		return ""
	}
	if handle == HandleDefault || handle == HandleAllCharacters {
		return payload.JSON(nonNil(cg.Characters))
	}
	if i, ok := indexed(handle, PrefixCharacter); ok {
		c, found := at(cg.Characters, i)
		if !found {
			return ""
		}
		return payload.JSON(c)
	}
	return ""
}

func (characterGenerator) Ports(p payload.Payload) []Port {
	cg, ok := p.(*payload.CharacterGenerator)
	if !ok {
		return nil
	}
	ports := []Port{{ID: HandleAllCharacters, Label: "All characters"}}
	for i, c := range cg.Characters {
		ports = append(ports, Port{ID: portID(PrefixCharacter, i), Label: numbered("Character", i, c.Name)})
	}
	return ports
}

type characterCard struct{}

func (characterCard) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	cc, ok := p.(*payload.CharacterCard)
	if !ok {
		return ""
	}
	switch handle {
	case HandleDefault:
		if cc.Key() == "" {
			return ""
		}
		return payload.JSON(cc.Character)
	case HandlePrompt:
		return cc.ImagePrompt
	case HandleImage:
		return cc.Image
	}
	return ""
}

func (characterCard) Ports(payload.Payload) []Port {
	return []Port{
		{ID: HandlePrompt, Label: "Prompt"},
		{ID: HandleImage, Label: "Image"},
	}
}

type promptModifier struct{}

func (promptModifier) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	pm, ok := p.(*payload.ScriptPromptModifier)
	if !ok {
		return ""
	}
	if handle == HandleDefault || handle == HandleAllFinalPrompts {
		return payload.JSON(nonNil(pm.FinalPrompts))
	}
	if i, ok := indexed(handle, PrefixVideoPrompt); ok {
		fp, _ := at(pm.FinalPrompts, i)
		return fp.VideoPrompt
	}
	if i, ok := indexed(handle, PrefixPrompt); ok {
		fp, _ := at(pm.FinalPrompts, i)
		return fp.Prompt
	}
	return ""
}

func (promptModifier) Ports(p payload.Payload) []Port {
	pm, ok := p.(*payload.ScriptPromptModifier)
	if !ok {
		return nil
	}
	ports := []Port{{ID: HandleAllFinalPrompts, Label: "All prompts"}}
	for i, fp := range pm.FinalPrompts {
		frame := fmt.Sprintf("S%d F%d", fp.SceneNumber, fp.FrameNumber)
		ports = append(ports,
			Port{ID: portID(PrefixPrompt, i), Label: "Prompt " + frame},
			Port{ID: portID(PrefixVideoPrompt, i), Label: "Video " + frame},
		)
	}
	return ports
}

type imageSequence struct{}

func (imageSequence) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	is, ok := p.(*payload.ImageSequenceGenerator)
	if !ok {
		return ""
	}
	if handle == HandleDefault {
		return payload.JSON(nonNil(is.Images))
	}
	if i, ok := indexed(handle, PrefixImage); ok {
		img, _ := at(is.Images, i)
		return img
	}
	return ""
}

func (imageSequence) Ports(p payload.Payload) []Port {
	is, ok := p.(*payload.ImageSequenceGenerator)
	if !ok {
		return nil
	}
	ports := make([]Port, 0, len(is.Images))
	for i := range is.Images {
		ports = append(ports, Port{ID: portID(PrefixImage, i), Label: numbered("Image", i, "")})
	}
	return ports
}

type youTubeTitles struct{}

func (youTubeTitles) ResolvePort(_ *Scope, p payload.Payload, handle string) string {
	yt, ok := p.(*payload.YouTubeTitleGenerator)
	if !ok {
		return ""
	}
	switch handle {
	case HandleDefault:
		return payload.JSON(struct {
			Titles      []string `json:"titles"`
			Description string   `json:"description"`
			Tags        []string `json:"tags"`
		}{nonNil(yt.Titles), yt.Description, nonNil(yt.Tags)})
	case HandleDescription:
		return yt.Description
	case HandleTags:
		return strings.Join(yt.Tags, ", ")
	}
	if i, ok := indexed(handle, PrefixTitle); ok {
		title, _ := at(yt.Titles, i)
		return title
	}
	return ""
}

func (youTubeTitles) Ports(p payload.Payload) []Port {
	yt, ok := p.(*payload.YouTubeTitleGenerator)
	if !ok {
		return nil
	}
	ports := make([]Port, 0, len(yt.Titles)+2)
	for i, title := range yt.Titles {
		ports = append(ports, Port{ID: portID(PrefixTitle, i), Label: numbered("Title", i, title)})
	}
	return append(ports,
		Port{ID: HandleDescription, Label: "Description"},
		Port{ID: HandleTags, Label: "Tags"},
	)
}

// numbered renders a one-based label such as "Character 1: Bob".
func numbered(what string, i int, detail string) string {
	label := fmt.Sprintf("%s %d", what, i+1)
	if detail = strings.TrimSpace(detail); detail != "" {
		label += ": " + detail
	}
	return label
}

// nonNil keeps JSON port values as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
