// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_CanonicalForm(t *testing.T) {
	got := Render("Kimi")
	assert.Equal(t, "🤖 Generated with [OpenCode](https://opencode.ai) (Kimi)", got)
}

func TestMarker_IsPrefixOfRender(t *testing.T) {
	c := Default()
	rendered := c.Render("Claude 3.5 Sonnet")
	idx := strings.Index(rendered, c.Marker())
	assert.Equal(t, len(c.Glyph)+1, idx, "marker must directly follow the glyph")
	assert.NotContains(t, c.Marker(), "Claude", "marker must not include the display name")
}

func TestHasSignature(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"plain body", "Fixes the flaky test", false},
		{"rendered", "body\n\n" + Render("GPT-4o"), true},
		{"other model same host", Render("Some Other Model"), true},
		{"link text only", "Generated with [OpenCode]", true},
		{"different host", "Generated with [Other]", false},
		{"case differs", "generated with [opencode]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasSignature(tt.text))
		})
	}
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	c := New("", "Crush", "")
	assert.Equal(t, DefaultGlyph, c.Glyph)
	assert.Equal(t, "Crush", c.HostName)
	assert.Equal(t, DefaultHostURL, c.HostURL)
	assert.True(t, c.HasSignature(c.Render("x")))
	assert.False(t, Default().HasSignature(c.Render("x")))
}

func TestCount(t *testing.T) {
	c := Default()
	text := c.Render("a") + "\n" + c.Render("b")
	assert.Equal(t, 2, c.Count(text))
	assert.Equal(t, 0, c.Count("nothing here"))
}
