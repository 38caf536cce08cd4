// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package signature renders and detects the provenance signature.
package signature

import (
	"fmt"
	"strings"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultGlyph is the marker emoji that opens every signature.
	DefaultGlyph = "🤖"

	// DefaultHostName is the automation host named in the signature link.
	DefaultHostName = "OpenCode"

	// DefaultHostURL is the link target for the host name.
	DefaultHostURL = "https://opencode.ai"
)

// =============================================================================
// CODEC
// =============================================================================

// Codec renders and detects signatures for one host.
// The zero value is not usable; use Default or New.
type Codec struct {
	Glyph    string
	HostName string
	HostURL  string
}

// Default returns the codec for the canonical OpenCode signature.
func Default() Codec {
	return Codec{
		Glyph:    DefaultGlyph,
		HostName: DefaultHostName,
		HostURL:  DefaultHostURL,
	}
}

// New returns a codec for the given host. Empty fields fall back to the defaults.
func New(glyph, hostName, hostURL string) Codec {
	c := Default()
	if glyph != "" {
		c.Glyph = glyph
	}
	if hostName != "" {
		c.HostName = hostName
	}
	if hostURL != "" {
		c.HostURL = hostURL
	}
	return c
}

// Marker returns the substring whose presence means "already signed".
// It is the part of the template before the link target and must stay
// in lockstep with Render.
func (c Codec) Marker() string {
	return "Generated with [" + c.HostName + "]"
}

// Render builds the signature for a display name.
func (c Codec) Render(displayName string) string {
	return fmt.Sprintf("%s %s(%s) (%s)", c.Glyph, c.Marker(), c.HostURL, displayName)
}

// HasSignature reports whether text already carries a signature.
func (c Codec) HasSignature(text string) bool {
	return strings.Contains(text, c.Marker())
}

// Count returns how many signatures text carries.
func (c Codec) Count(text string) int {
	return strings.Count(text, c.Marker())
}

// =============================================================================
// PACKAGE-LEVEL HELPERS
// =============================================================================

// Render builds the canonical signature for a display name.
func Render(displayName string) string {
	return Default().Render(displayName)
}

// HasSignature reports whether text carries the canonical signature marker.
func HasSignature(text string) bool {
	return Default().HasSignature(text)
}
