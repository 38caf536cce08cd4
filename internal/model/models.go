// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// UnknownModel is the display name used when no identity is available.
const UnknownModel = "Unknown Model"

// =============================================================================
// DISPLAY NAME TABLE
// =============================================================================

// NameEntry maps an identifier key to its display name.
type NameEntry struct {
	// Key is matched exactly, then as a case-insensitive substring.
	Key string `json:"key"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider identifies who provides the model
	Provider string `json:"provider"`
}

// Names is the display-name table. Order is significant: substring lookup
// returns the first entry whose key occurs in the identifier, so longer,
// more specific keys are declared before the keys they contain.
var Names = []NameEntry{
	// Anthropic
	{Key: "claude-opus-4-5", Name: "Claude Opus 4.5", Provider: "Anthropic"},
	{Key: "claude-opus-4.5", Name: "Claude Opus 4.5", Provider: "Anthropic"},
	{Key: "claude-opus-4-1", Name: "Claude Opus 4.1", Provider: "Anthropic"},
	{Key: "claude-opus-4.1", Name: "Claude Opus 4.1", Provider: "Anthropic"},
	{Key: "claude-opus-4", Name: "Claude Opus 4", Provider: "Anthropic"},
	{Key: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: "Anthropic"},
	{Key: "claude-sonnet-4.5", Name: "Claude Sonnet 4.5", Provider: "Anthropic"},
	{Key: "claude-sonnet-4", Name: "Claude Sonnet 4", Provider: "Anthropic"},
	{Key: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Provider: "Anthropic"},
	{Key: "claude-haiku-4.5", Name: "Claude Haiku 4.5", Provider: "Anthropic"},
	{Key: "claude-3-7-sonnet", Name: "Claude 3.7 Sonnet", Provider: "Anthropic"},
	{Key: "claude-3.7-sonnet", Name: "Claude 3.7 Sonnet", Provider: "Anthropic"},
	{Key: "claude-3-5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "Anthropic"},
	{Key: "claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "Anthropic"},
	{Key: "claude-3-5-haiku", Name: "Claude 3.5 Haiku", Provider: "Anthropic"},
	{Key: "claude-3.5-haiku", Name: "Claude 3.5 Haiku", Provider: "Anthropic"},
	{Key: "claude-3-opus", Name: "Claude 3 Opus", Provider: "Anthropic"},
	{Key: "claude-3-sonnet", Name: "Claude 3 Sonnet", Provider: "Anthropic"},
	{Key: "claude-3-haiku", Name: "Claude 3 Haiku", Provider: "Anthropic"},

	// OpenAI
	{Key: "gpt-5-codex", Name: "GPT-5 Codex", Provider: "OpenAI"},
	{Key: "gpt-5-mini", Name: "GPT-5 Mini", Provider: "OpenAI"},
	{Key: "gpt-5-nano", Name: "GPT-5 Nano", Provider: "OpenAI"},
	{Key: "gpt-5", Name: "GPT-5", Provider: "OpenAI"},
	{Key: "gpt-4.1-mini", Name: "GPT-4.1 Mini", Provider: "OpenAI"},
	{Key: "gpt-4.1-nano", Name: "GPT-4.1 Nano", Provider: "OpenAI"},
	{Key: "gpt-4.1", Name: "GPT-4.1", Provider: "OpenAI"},
	{Key: "gpt-4o-mini", Name: "GPT-4o Mini", Provider: "OpenAI"},
	{Key: "gpt-4o", Name: "GPT-4o", Provider: "OpenAI"},
	{Key: "gpt-4-turbo", Name: "GPT-4 Turbo", Provider: "OpenAI"},
	{Key: "gpt-4", Name: "GPT-4", Provider: "OpenAI"},
	{Key: "gpt-oss-120b", Name: "GPT-OSS 120B", Provider: "OpenAI"},
	{Key: "gpt-oss-20b", Name: "GPT-OSS 20B", Provider: "OpenAI"},
	{Key: "o4-mini", Name: "o4-mini", Provider: "OpenAI"},
	{Key: "o3-mini", Name: "o3-mini", Provider: "OpenAI"},
	{Key: "o3-pro", Name: "o3-pro", Provider: "OpenAI"},
	{Key: "o1-mini", Name: "o1-mini", Provider: "OpenAI"},
	{Key: "o1-preview", Name: "o1-preview", Provider: "OpenAI"},

	// Google
	{Key: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: "Google"},
	{Key: "gemini-2.5-flash-lite", Name: "Gemini 2.5 Flash Lite", Provider: "Google"},
	{Key: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: "Google"},
	{Key: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: "Google"},
	{Key: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Provider: "Google"},
	{Key: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Provider: "Google"},

	// Moonshot, Alibaba, DeepSeek, Zhipu
	{Key: "kimi-k2-thinking", Name: "Kimi K2 Thinking", Provider: "Moonshot"},
	{Key: "kimi-k2", Name: "Kimi K2", Provider: "Moonshot"},
	{Key: "qwen3-coder", Name: "Qwen3 Coder", Provider: "Alibaba"},
	{Key: "qwen2.5-coder", Name: "Qwen2.5 Coder", Provider: "Alibaba"},
	{Key: "deepseek-r1", Name: "DeepSeek R1", Provider: "DeepSeek"},
	{Key: "deepseek-v3", Name: "DeepSeek V3", Provider: "DeepSeek"},
	{Key: "deepseek-reasoner", Name: "DeepSeek Reasoner", Provider: "DeepSeek"},
	{Key: "deepseek-chat", Name: "DeepSeek Chat", Provider: "DeepSeek"},
	{Key: "glm-4.6", Name: "GLM-4.6", Provider: "Zhipu"},
	{Key: "glm-4.5-air", Name: "GLM-4.5 Air", Provider: "Zhipu"},
	{Key: "glm-4.5", Name: "GLM-4.5", Provider: "Zhipu"},

	// xAI, Mistral, Meta
	{Key: "grok-code-fast-1", Name: "Grok Code Fast 1", Provider: "xAI"},
	{Key: "grok-4", Name: "Grok 4", Provider: "xAI"},
	{Key: "grok-3", Name: "Grok 3", Provider: "xAI"},
	{Key: "codestral", Name: "Codestral", Provider: "Mistral"},
	{Key: "devstral", Name: "Devstral", Provider: "Mistral"},
	{Key: "mistral-large", Name: "Mistral Large", Provider: "Mistral"},
	{Key: "llama-4-maverick", Name: "Llama 4 Maverick", Provider: "Meta"},
	{Key: "llama-3.3-70b", Name: "Llama 3.3 70B", Provider: "Meta"},

	// Host-curated
	{Key: "big-pickle", Name: "Big Pickle", Provider: "OpenCode"},
}

// =============================================================================
// NORMALIZATION
// =============================================================================

var (
	// isoDateSuffix matches "-2025-01-31" style release dates.
	isoDateSuffix = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`)

	// hashSuffix matches content hashes and compact dates ("-20241022", "-a1b2c3d").
	hashSuffix = regexp.MustCompile(`(?i)-[0-9a-f]{7,}$`)
)

// Normalize strips date and hash suffixes and replaces "@" with "/".
func Normalize(id string) string {
	id = isoDateSuffix.ReplaceAllString(id, "")
	id = hashSuffix.ReplaceAllString(id, "")
	return strings.ReplaceAll(id, "@", "/")
}

// foldKey is the comparison form for substring lookup. NFKC folds
// compatibility characters (fullwidth digits, ligatures) onto ASCII.
func foldKey(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// =============================================================================
// LOOKUP
// =============================================================================

// Lookup resolves a normalized identifier against Names.
// Exact matches win over substring matches; among substring matches the
// first declared entry wins.
func Lookup(normalized string) (NameEntry, bool) {
	for _, e := range Names {
		if e.Key == normalized {
			return e, true
		}
	}

	folded := foldKey(normalized)
	for _, e := range Names {
		if strings.Contains(folded, strings.ToLower(e.Key)) {
			return e, true
		}
	}
	return NameEntry{}, false
}

// FormatID maps a raw identifier to its display name.
func FormatID(id string) string {
	if id == "" {
		return UnknownModel
	}

	normalized := Normalize(id)
	if entry, ok := Lookup(normalized); ok {
		return entry.Name
	}
	if normalized == "" {
		return UnknownModel
	}
	return capitalize(normalized)
}

// FormatIdentity maps an identity to its display name. A nil identity, or a
// pair with an empty model field, yields UnknownModel.
func FormatIdentity(id *Identity) string {
	if id == nil {
		return UnknownModel
	}
	return FormatID(id.ID())
}

// capitalize upper-cases the first rune and leaves the rest unchanged.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// EntriesByProvider returns the table rows for one provider, in table order.
func EntriesByProvider(provider string) []NameEntry {
	result := []NameEntry{}
	lowerProvider := strings.ToLower(provider)

	for _, e := range Names {
		if strings.ToLower(e.Provider) == lowerProvider {
			result = append(result, e)
		}
	}

	return result
}
