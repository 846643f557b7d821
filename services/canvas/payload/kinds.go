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

import "github.com/AleutianAI/AleutianCanvas/services/canvas/graph"

// =============================================================================
// Leaf and pass-through kinds
// =============================================================================

// Text is the raw text of a TEXT_INPUT or NOTE node.
type Text struct {
	kind graph.NodeKind
	Text string
}

func (p *Text) Kind() graph.NodeKind { return p.kind }

// Reroute carries nothing; a reroute dot only forwards.
type Reroute struct{}

func (p *Reroute) Kind() graph.NodeKind { return graph.KindRerouteDot }

// =============================================================================
// Text transformation kinds
// =============================================================================

// Translator holds one translation request and its result.
type Translator struct {
	InputText      string `json:"inputText"`
	TargetLanguage string `json:"targetLanguage"`
	TranslatedText string `json:"translatedText"`
	IsLoading      bool   `json:"isLoading,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (p *Translator) Kind() graph.NodeKind { return graph.KindTranslator }

// PromptAnalyzer splits a prompt into scene elements.
type PromptAnalyzer struct {
	InputPrompt string   `json:"inputPrompt,omitempty"`
	Environment string   `json:"environment"`
	Characters  []string `json:"characters"`
	Action      string   `json:"action"`
	Style       string   `json:"style"`
	Error       string   `json:"error,omitempty"`
}

func (p *PromptAnalyzer) Kind() graph.NodeKind { return graph.KindPromptAnalyzer }

// PromptImprover rewrites a prompt for image models.
type PromptImprover struct {
	InputPrompt    string `json:"inputPrompt"`
	ImprovedPrompt string `json:"improvedPrompt"`
	Error          string `json:"error,omitempty"`
}

func (p *PromptImprover) Kind() graph.NodeKind { return graph.KindPromptImprover }

// PromptSanitizer removes content a model would refuse.
type PromptSanitizer struct {
	InputPrompt     string `json:"inputPrompt"`
	SanitizedPrompt string `json:"sanitizedPrompt"`
	Error           string `json:"error,omitempty"`
}

func (p *PromptSanitizer) Kind() graph.NodeKind { return graph.KindPromptSanitizer }

// IdeaGenerator brainstorms ideas for a topic.
type IdeaGenerator struct {
	Topic string `json:"topic"`
	Count int    `json:"count,omitempty"`
	Ideas []Idea `json:"ideas"`
	Error string `json:"error,omitempty"`
}

func (p *IdeaGenerator) Kind() graph.NodeKind { return graph.KindIdeaGenerator }

// =============================================================================
// Character kinds
// =============================================================================

// CharacterGenerator invents characters from a prompt.
type CharacterGenerator struct {
	Prompt     string      `json:"prompt"`
	Count      int         `json:"count,omitempty"`
	Characters []Character `json:"characters"`
	Error      string      `json:"error,omitempty"`
}

func (p *CharacterGenerator) Kind() graph.NodeKind { return graph.KindCharacterGenerator }

// CharacterCard is a single character with its portrait.
type CharacterCard struct {
	Character
}

func (p *CharacterCard) Kind() graph.NodeKind { return graph.KindCharacterCard }

// =============================================================================
// Script chain kinds
// =============================================================================

// ScriptGenerator writes a scene-by-scene script.
type ScriptGenerator struct {
	Request         string      `json:"request"`
	TargetLanguage  string      `json:"targetLanguage"`
	VisualStyle     string      `json:"visualStyle"`
	Characters      []Character `json:"characters"`
	Scenes          []Scene     `json:"scenes"`
	NarratorEnabled bool        `json:"narratorEnabled"`
	SceneCount      int         `json:"sceneCount,omitempty"`
	Error           string      `json:"error,omitempty"`
}

func (p *ScriptGenerator) Kind() graph.NodeKind { return graph.KindScriptGenerator }

// ScriptAnalyzer breaks a script into frames with image prompts.
type ScriptAnalyzer struct {
	Scenes      []AnalyzedScene `json:"scenes"`
	Characters  []Character     `json:"characters"`
	VisualStyle string          `json:"visualStyle"`
	Error       string          `json:"error,omitempty"`
}

func (p *ScriptAnalyzer) Kind() graph.NodeKind { return graph.KindScriptAnalyzer }

// ScriptPromptModifier holds the final per-frame prompts.
type ScriptPromptModifier struct {
	FinalPrompts []FinalPrompt `json:"finalPrompts"`
	Error        string        `json:"error,omitempty"`
}

func (p *ScriptPromptModifier) Kind() graph.NodeKind { return graph.KindScriptPromptModifier }

// =============================================================================
// Media kinds
// =============================================================================

// ImageInput is a user-supplied image as a data URL or base64 string.
type ImageInput struct {
	Image    string `json:"image"`
	FileName string `json:"fileName,omitempty"`
}

func (p *ImageInput) Kind() graph.NodeKind { return graph.KindImageInput }

// ImageGenerator renders an image from a prompt.
type ImageGenerator struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Image       string `json:"image"`
	Error       string `json:"error,omitempty"`
}

func (p *ImageGenerator) Kind() graph.NodeKind { return graph.KindImageGenerator }

// ImageEditor edits an input image according to a prompt.
type ImageEditor struct {
	Prompt     string `json:"prompt"`
	InputImage string `json:"inputImage"`
	Image      string `json:"image"`
	Error      string `json:"error,omitempty"`
}

func (p *ImageEditor) Kind() graph.NodeKind { return graph.KindImageEditor }

// ImageSequenceGenerator renders one image per prompt.
type ImageSequenceGenerator struct {
	Prompts []string `json:"prompts"`
	Images  []string `json:"images"`
	Error   string   `json:"error,omitempty"`
}

func (p *ImageSequenceGenerator) Kind() graph.NodeKind { return graph.KindImageSequenceGenerator }

// AudioGenerator speaks text with a voice.
type AudioGenerator struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Audio string `json:"audio"`
	Error string `json:"error,omitempty"`
}

func (p *AudioGenerator) Kind() graph.NodeKind { return graph.KindAudioGenerator }

// =============================================================================
// YouTube, chat and data kinds
// =============================================================================

// YouTubeTitleGenerator proposes titles, a description and tags.
type YouTubeTitleGenerator struct {
	Idea        string   `json:"idea"`
	Titles      []string `json:"titles"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Error       string   `json:"error,omitempty"`
}

func (p *YouTubeTitleGenerator) Kind() graph.NodeKind { return graph.KindYouTubeTitleGenerator }

// YouTubeAnalytics holds a channel report.
type YouTubeAnalytics struct {
	ChannelURL string `json:"channelUrl,omitempty"`
	Report     string `json:"report"`
	Error      string `json:"error,omitempty"`
}

func (p *YouTubeAnalytics) Kind() graph.NodeKind { return graph.KindYouTubeAnalytics }

// Chat is a conversation with the model.
type Chat struct {
	Messages []ChatMessage `json:"messages"`
}

func (p *Chat) Kind() graph.NodeKind { return graph.KindChat }

// LastModelMessage returns the newest message not written by the user.
func (p *Chat) LastModelMessage() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role != RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

// DataReader holds the text content of a loaded file.
type DataReader struct {
	FileName string `json:"fileName,omitempty"`
	Content  string `json:"content"`
}

func (p *DataReader) Kind() graph.NodeKind { return graph.KindDataReader }
