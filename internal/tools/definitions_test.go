// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()

	structured := []string{
		"github_create_pull_request",
		"github_update_pull_request",
		"github_create_issue",
		"github_update_issue",
		"mcp__github__create_pull_request",
		"mcp__github__update_pull_request",
		"mcp__github__create_issue",
		"mcp__github__update_issue",
	}
	for _, name := range structured {
		assert.Equal(t, KindStructured, r.KindOf(name), name)
		require.NotNil(t, r.Get(name))
		assert.Equal(t, BodyArg, r.Get(name).Field())
		assert.True(t, r.Get(name).Builtin)
	}

	assert.Equal(t, KindShell, r.KindOf("bash"))
	assert.Equal(t, CommandArg, r.Get("bash").Field())
	assert.Equal(t, len(structured)+1, r.Len())
}

func TestRegistry_ExactMatchOnly(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"Bash", "GITHUB_CREATE_ISSUE", "github_create_issue ", "read", ""} {
		assert.Equal(t, KindNone, r.KindOf(name), name)
		assert.Nil(t, r.Get(name))
	}

	var nilRegistry *Registry
	assert.Equal(t, KindNone, nilRegistry.KindOf("bash"))
}

func TestRegistry_Extras(t *testing.T) {
	r := NewRegistryWithExtras(
		[]string{"gitlab_create_merge_request", " ", "bash"},
		[]string{"shell", "github_create_issue"},
	)

	assert.Equal(t, KindStructured, r.KindOf("gitlab_create_merge_request"))
	assert.Equal(t, KindShell, r.KindOf("shell"))
	assert.False(t, r.Get("shell").Builtin)

	// Extras never redefine a builtin.
	assert.Equal(t, KindShell, r.KindOf("bash"))
	assert.Equal(t, KindStructured, r.KindOf("github_create_issue"))
	assert.Equal(t, 11, r.Len())
}

func TestRegistry_AllSorted(t *testing.T) {
	all := NewRegistry().All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "structured", KindStructured.String())
	assert.Equal(t, "shell", KindShell.String())
	assert.Equal(t, "none", KindNone.String())
}
