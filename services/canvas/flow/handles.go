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
	"strconv"
	"strings"
)

// Output port ids shared by several kinds.
const (
	HandleDefault         = ""
	HandleEnvironment     = "environment"
	HandleAction          = "action"
	HandleStyle           = "style"
	HandleCharacters      = "characters"
	HandleAllCharacters   = "all-characters"
	HandlePrompt          = "prompt"
	HandleImage           = "image"
	HandleDescription     = "description"
	HandleTags            = "tags"
	HandleAllScriptData   = "all-script-data"
	HandleAllAnalyzerData = "all-script-analyzer-data"
	HandleAllFinalPrompts = "all-final-prompts"
	PrefixCharacter       = "character"
	PrefixIdea            = "idea"
	PrefixScene           = "scene"
	PrefixNarrator        = "narrator"
	PrefixPrompt          = "prompt"
	PrefixVideoPrompt     = "video-prompt"
	PrefixImage           = "image"
	PrefixTitle           = "title"
	InputScript           = "script"
	InputPrompt           = "prompt"
	InputText             = "text"
	InputImage            = "image"
)

func normalizeHandle(h string) string {
	return strings.TrimSpace(h)
}

// indexed parses "<prefix>-<n>" and returns n. The prefix must match
// exactly, so "video-prompt-1" never parses as a "prompt" handle.
func indexed(handle, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(handle, prefix+"-")
	if !ok || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// portID builds "<prefix>-<n>".
func portID(prefix string, n int) string {
	return prefix + "-" + strconv.Itoa(n)
}

// at returns items[i], or the zero value when i is out of range.
func at[T any](items []T, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(items) {
		return zero, false
	}
	return items[i], true
}
