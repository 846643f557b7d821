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
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/flow"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
)

var errEmptyOutput = errors.New("empty output")

// job is one node run against a fixed snapshot.
type job struct {
	snap *graph.Snapshot
	node graph.Node
}

// input returns the trimmed value on the first of ports that has an
// inbound connection, or "".
func (j job) input(ports ...string) string {
	for _, port := range ports {
		c, ok := j.snap.InboundTo(j.node.ID, port)
		if !ok {
			continue
		}
		return strings.TrimSpace(flow.Resolve(j.snap, c.FromNodeID, c.FromHandleID))
	}
	return ""
}

// inputOr prefers a connected value and falls back to the local field.
func (j job) inputOr(local string, ports ...string) string {
	if v := j.input(ports...); v != "" {
		return v
	}
	return strings.TrimSpace(local)
}

// apply writes a run's output fields into a payload. It is applied to the
// node's latest value at commit time, so fields edited while the
// generation call was in flight survive.
type apply func(p payload.Payload) error

// handler reads its inputs from p and returns the output to apply.
type handler func(ctx context.Context, g llm.Generator, j job, p payload.Payload) (apply, error)

// typed adapts a handler for one payload type.
func typed[P payload.Payload](fn func(context.Context, llm.Generator, job, P) (func(P), error)) handler {
	return func(ctx context.Context, g llm.Generator, j job, p payload.Payload) (apply, error) {
		tp, ok := p.(P)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotRunnable, p.Kind())
		}
		out, err := fn(ctx, g, j, tp)
		if err != nil {
			return nil, err
		}
		return func(latest payload.Payload) error {
			lp, ok := latest.(P)
			if !ok {
				return fmt.Errorf("%w: %s changed kind during the run", ErrNotRunnable, j.node.ID)
			}
			out(lp)
			return nil
		}, nil
	}
}

// echo records the input a run used in field, unless field was edited
// since the run read seen.
func echo(field *string, seen, used string) {
	if *field == seen {
		*field = used
	}
}

var handlers = map[graph.NodeKind]handler{
	graph.KindTranslator:             typed(translate),
	graph.KindPromptAnalyzer:         typed(splitPrompt),
	graph.KindPromptImprover:         typed(improvePrompt),
	graph.KindPromptSanitizer:        typed(sanitizePrompt),
	graph.KindIdeaGenerator:          typed(generateIdeas),
	graph.KindCharacterGenerator:     typed(generateCharacters),
	graph.KindImageGenerator:         typed(generateImage),
	graph.KindImageEditor:            typed(editImage),
	graph.KindImageSequenceGenerator: typed(generateSequence),
	graph.KindAudioGenerator:         typed(generateAudio),
	graph.KindYouTubeTitleGenerator:  typed(generateTitles),
	graph.KindScriptGenerator:        typed(generateScript),
	graph.KindScriptAnalyzer:         typed(analyzeScript),
	graph.KindScriptPromptModifier:   typed(modifyPrompts),
}

// =============================================================================
// Text handlers
// =============================================================================

func translate(ctx context.Context, g llm.Generator, j job, p *payload.Translator) (func(*payload.Translator), error) {
	seen := p.InputText
	text := j.inputOr(seen, flow.InputText, flow.HandleDefault)
	if text == "" {
		return nil, ErrMissingInput
	}
	lang := strings.TrimSpace(p.TargetLanguage)
	if lang == "" {
		lang = defaultLanguage
	}
	out, err := plainText(ctx, g, "translate", fmt.Sprintf(systemTranslate, lang), text)
	if err != nil {
		return nil, err
	}
	return func(p *payload.Translator) {
		echo(&p.InputText, seen, text)
		p.TranslatedText = out
	}, nil
}

func splitPrompt(ctx context.Context, g llm.Generator, j job, p *payload.PromptAnalyzer) (func(*payload.PromptAnalyzer), error) {
	seen := p.InputPrompt
	prompt := j.inputOr(seen, flow.InputPrompt, flow.HandleDefault)
	if prompt == "" {
		return nil, ErrMissingInput
	}
	const system = "You split image prompts into parts. Reply with JSON: " +
		`{"environment":"...","characters":["..."],"action":"...","style":"..."}.`
	var out struct {
		Environment string   `json:"environment"`
		Characters  []string `json:"characters"`
		Action      string   `json:"action"`
		Style       string   `json:"style"`
	}
	if err := jsonText(ctx, g, "analyze prompt", system, prompt, &out); err != nil {
		return nil, err
	}
	return func(p *payload.PromptAnalyzer) {
		echo(&p.InputPrompt, seen, prompt)
		p.Environment = out.Environment
		p.Characters = out.Characters
		p.Action = out.Action
		p.Style = out.Style
	}, nil
}

func improvePrompt(ctx context.Context, g llm.Generator, j job, p *payload.PromptImprover) (func(*payload.PromptImprover), error) {
	seen := p.InputPrompt
	prompt := j.inputOr(seen, flow.InputPrompt, flow.HandleDefault)
	if prompt == "" {
		return nil, ErrMissingInput
	}
	out, err := plainText(ctx, g, "improve prompt", systemImprove, prompt)
	if err != nil {
		return nil, err
	}
	return func(p *payload.PromptImprover) {
		echo(&p.InputPrompt, seen, prompt)
		p.ImprovedPrompt = out
	}, nil
}

func sanitizePrompt(ctx context.Context, g llm.Generator, j job, p *payload.PromptSanitizer) (func(*payload.PromptSanitizer), error) {
	seen := p.InputPrompt
	prompt := j.inputOr(seen, flow.InputPrompt, flow.HandleDefault)
	if prompt == "" {
		return nil, ErrMissingInput
	}
	out, err := plainText(ctx, g, "sanitize prompt", systemSanitize, prompt)
	if err != nil {
		return nil, err
	}
	return func(p *payload.PromptSanitizer) {
		echo(&p.InputPrompt, seen, prompt)
		p.SanitizedPrompt = out
	}, nil
}

func generateIdeas(ctx context.Context, g llm.Generator, j job, p *payload.IdeaGenerator) (func(*payload.IdeaGenerator), error) {
	seen := p.Topic
	topic := j.inputOr(seen, flow.InputPrompt, flow.InputText, flow.HandleDefault)
	if topic == "" {
		return nil, ErrMissingInput
	}
	count := p.Count
	if count <= 0 {
		count = defaultIdeaCount
	}
	var out struct {
		Ideas []payload.Idea `json:"ideas"`
	}
	prompt := fmt.Sprintf("Topic: %s\nIdeas: %d", topic, count)
	if err := jsonText(ctx, g, "ideas", systemIdeas, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Ideas) == 0 {
		return nil, llm.Malformed("ideas", errEmptyOutput)
	}
	return func(p *payload.IdeaGenerator) {
		echo(&p.Topic, seen, topic)
		p.Ideas = out.Ideas
	}, nil
}

func generateCharacters(ctx context.Context, g llm.Generator, j job, p *payload.CharacterGenerator) (func(*payload.CharacterGenerator), error) {
	seen := p.Prompt
	prompt := j.inputOr(seen, flow.InputPrompt, flow.InputText, flow.HandleDefault)
	if prompt == "" {
		return nil, ErrMissingInput
	}
	count := p.Count
	if count <= 0 {
		count = defaultCharacters
	}
	out, err := llm.GenerateText(ctx, g, systemCharacters, fmt.Sprintf("Story: %s\nCharacters: %d", prompt, count), true)
	if err != nil {
		return nil, err
	}
	characters := payload.ParseCharacters(stripFence(out))
	if len(characters) == 0 {
		return nil, llm.Malformed("characters", errEmptyOutput)
	}
	return func(p *payload.CharacterGenerator) {
		echo(&p.Prompt, seen, prompt)
		p.Characters = characters
	}, nil
}

func generateTitles(ctx context.Context, g llm.Generator, j job, p *payload.YouTubeTitleGenerator) (func(*payload.YouTubeTitleGenerator), error) {
	seen := p.Idea
	idea := j.inputOr(seen, flow.InputPrompt, flow.InputText, flow.HandleDefault)
	if idea == "" {
		return nil, ErrMissingInput
	}
	var out struct {
		Titles      []string `json:"titles"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := jsonText(ctx, g, "titles", systemTitles, idea, &out); err != nil {
		return nil, err
	}
	if len(out.Titles) == 0 {
		return nil, llm.Malformed("titles", errEmptyOutput)
	}
	return func(p *payload.YouTubeTitleGenerator) {
		echo(&p.Idea, seen, idea)
		p.Titles = out.Titles
		p.Description = out.Description
		p.Tags = out.Tags
	}, nil
}

// =============================================================================
// Media handlers
// =============================================================================

func generateImage(ctx context.Context, g llm.Generator, j job, p *payload.ImageGenerator) (func(*payload.ImageGenerator), error) {
	seen := p.Prompt
	prompt := j.inputOr(seen, flow.InputPrompt, flow.HandleDefault)
	if prompt == "" {
		return nil, ErrMissingInput
	}
	image, err := renderImage(ctx, g, prompt, "")
	if err != nil {
		return nil, err
	}
	return func(p *payload.ImageGenerator) {
		echo(&p.Prompt, seen, prompt)
		p.Image = image
	}, nil
}

func editImage(ctx context.Context, g llm.Generator, j job, p *payload.ImageEditor) (func(*payload.ImageEditor), error) {
	seenPrompt, seenSource := p.Prompt, p.InputImage
	prompt := j.inputOr(seenPrompt, flow.InputPrompt, flow.InputText)
	source := j.inputOr(seenSource, flow.InputImage, flow.HandleDefault)
	if prompt == "" || source == "" {
		return nil, ErrMissingInput
	}
	image, err := renderImage(ctx, g, prompt, source)
	if err != nil {
		return nil, err
	}
	return func(p *payload.ImageEditor) {
		echo(&p.Prompt, seenPrompt, prompt)
		echo(&p.InputImage, seenSource, source)
		p.Image = image
	}, nil
}

func generateSequence(ctx context.Context, g llm.Generator, j job, p *payload.ImageSequenceGenerator) (func(*payload.ImageSequenceGenerator), error) {
	seen := slices.Clone(p.Prompts)
	var prompts []string
	for _, prompt := range p.Prompts {
		if prompt = strings.TrimSpace(prompt); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	if v := j.input(flow.InputPrompt, flow.HandleDefault); v != "" {
		prompts = splitLines(v)
	}
	if len(prompts) == 0 {
		return nil, ErrMissingInput
	}
	images := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		image, err := renderImage(ctx, g, prompt, "")
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return func(p *payload.ImageSequenceGenerator) {
		if slices.Equal(p.Prompts, seen) {
			p.Prompts = prompts
		}
		p.Images = images
	}, nil
}

func generateAudio(ctx context.Context, g llm.Generator, j job, p *payload.AudioGenerator) (func(*payload.AudioGenerator), error) {
	seen := p.Text
	text := j.inputOr(seen, flow.InputText, flow.HandleDefault)
	if text == "" {
		return nil, ErrMissingInput
	}
	resp, err := g.Generate(ctx, llm.Request{Kind: llm.KindAudio, Prompt: text, Voice: p.Voice})
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Audio == "" {
		return nil, llm.Malformed("audio", errEmptyOutput)
	}
	return func(p *payload.AudioGenerator) {
		echo(&p.Text, seen, text)
		p.Audio = resp.Audio
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

// plainText asks for free text and rejects an empty answer.
func plainText(ctx context.Context, g llm.Generator, op, system, prompt string) (string, error) {
	out, err := llm.GenerateText(ctx, g, system, prompt, false)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", llm.Malformed(op, errEmptyOutput)
	}
	return out, nil
}

// jsonText asks for a JSON object and decodes it into v.
func jsonText(ctx context.Context, g llm.Generator, op, system, prompt string, v any) error {
	out, err := llm.GenerateText(ctx, g, system, prompt, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFence(out)), v); err != nil {
		return llm.Malformed(op, err)
	}
	return nil
}

// stripFence removes a markdown code fence around a JSON answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func renderImage(ctx context.Context, g llm.Generator, prompt, source string) (string, error) {
	resp, err := g.Generate(ctx, llm.Request{Kind: llm.KindImage, Prompt: prompt, ImageInput: source})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Image == "" {
		return "", llm.Malformed("image", errEmptyOutput)
	}
	return resp.Image, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
