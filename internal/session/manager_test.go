// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/signature"
	"github.com/jeranaias/agentsig/internal/tools"
)

const kimiSig = "🤖 Generated with [OpenCode](https://opencode.ai) (Kimi)"

// newKimi returns a coordinator whose display name is "Kimi".
func newKimi(t *testing.T) *Coordinator {
	t.Helper()
	c := New(DefaultConfig())
	require.Equal(t, "Kimi", c.HandleModelUpdate(model.StringIdentity("kimi")))
	return c
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	c := New(Config{})

	assert.Equal(t, model.UnknownModel, c.DisplayName())
	assert.Equal(t, signature.Default(), c.Codec())
	assert.NotEmpty(t, c.SessionID())
	assert.Equal(t, tools.KindShell, c.Registry().KindOf("bash"))
	assert.Equal(t, signature.Render(model.UnknownModel), c.Signature())
}

func TestNew_DefaultModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultModel = "claude-sonnet-4-5-20250929"
	c := New(cfg)

	assert.Equal(t, "Claude Sonnet 4.5", c.DisplayName())
}

func TestSessionIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, New(Config{}).SessionID(), New(Config{}).SessionID())
}

// =============================================================================
// MODEL EVENTS
// =============================================================================

func TestHandleModelUpdate(t *testing.T) {
	c := New(DefaultConfig())

	assert.Equal(t, "Claude Opus 4.1", c.HandleModelUpdate(model.PairIdentity("anthropic", "claude-opus-4-1-20250805")))
	assert.Equal(t, "Claude Opus 4.1", c.DisplayName())

	// Each event overwrites the previous value.
	assert.Equal(t, "GPT-4o", c.HandleModelUpdate(model.StringIdentity("openai/gpt-4o")))
	assert.Equal(t, "GPT-4o", c.DisplayName())

	assert.Equal(t, model.UnknownModel, c.HandleModelUpdate(nil))
	assert.Equal(t, model.UnknownModel, c.DisplayName())

	stats := c.Stats()
	assert.Equal(t, 3, stats.ModelUpdates)
}

// =============================================================================
// STRUCTURED TOOLS
// =============================================================================

func TestHandleToolCall_StructuredBody(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]any
		want   any
		action tools.Action
	}{
		{
			name:   "body appended",
			args:   map[string]any{"title": "Fix", "body": "Details here\n\n  "},
			want:   "Details here\n\n" + kimiSig,
			action: tools.ActionBodyAppend,
		},
		{
			name:   "body absent",
			args:   map[string]any{"title": "Fix"},
			want:   kimiSig,
			action: tools.ActionBodySet,
		},
		{
			name:   "body empty",
			args:   map[string]any{"body": ""},
			want:   kimiSig,
			action: tools.ActionBodySet,
		},
		{
			name:   "body null",
			args:   map[string]any{"body": nil},
			want:   kimiSig,
			action: tools.ActionBodySet,
		},
		{
			name:   "already signed",
			args:   map[string]any{"body": "Done\n\n" + kimiSig},
			want:   "Done\n\n" + kimiSig,
			action: tools.ActionAlreadySigned,
		},
		{
			name:   "signed by another model",
			args:   map[string]any{"body": "Done\n\n" + signature.Render("GPT-5")},
			want:   "Done\n\n" + signature.Render("GPT-5"),
			action: tools.ActionAlreadySigned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newKimi(t)
			out := c.HandleToolCall(tools.GitHubCreatePullRequest, tt.args)

			assert.Equal(t, tt.want, tt.args["body"])
			assert.Equal(t, tt.action, out.Action)
			assert.Equal(t, tt.action.Mutates(), out.Mutated)
			assert.Equal(t, "structured", out.Kind)
			assert.Equal(t, "Kimi", out.Model)
			assert.NoError(t, out.Err)
			assert.Equal(t, 1, signature.Default().Count(tt.args["body"].(string)))
		})
	}
}

func TestHandleToolCall_DuplicatePrevention(t *testing.T) {
	c := newKimi(t)
	args := map[string]any{"body": "Summary"}

	for _, tool := range []string{"github_update_issue", "mcp__github__update_issue", "github_update_issue"} {
		c.HandleToolCall(tool, args)
	}
	assert.Equal(t, "Summary\n\n"+kimiSig, args["body"])
}

func TestHandleToolCall_BridgedTools(t *testing.T) {
	c := newKimi(t)
	for _, tool := range []string{
		"mcp__github__create_pull_request",
		"mcp__github__update_pull_request",
		"mcp__github__create_issue",
		"mcp__github__update_issue",
	} {
		args := map[string]any{}
		out := c.HandleToolCall(tool, args)
		assert.True(t, out.Mutated, tool)
		assert.Equal(t, kimiSig, args["body"], tool)
	}
}

func TestHandleToolCall_MalformedBody(t *testing.T) {
	c := newKimi(t)
	args := map[string]any{"body": 42}

	out := c.HandleToolCall(tools.GitHubCreateIssue, args)

	assert.Equal(t, 42, args["body"])
	assert.Equal(t, tools.ActionMalformed, out.Action)
	assert.False(t, out.Mutated)
	assert.Error(t, out.Err)
	assert.Contains(t, out.ErrorMessage(), "int")
}

func TestHandleToolCall_NilArgs(t *testing.T) {
	c := newKimi(t)
	out := c.HandleToolCall(tools.GitHubCreateIssue, nil)
	assert.ErrorIs(t, out.Err, ErrNilArgs)
	assert.False(t, out.Mutated)

	out = c.HandleToolCall(tools.ShellTool, nil)
	assert.NoError(t, out.Err)
	assert.Equal(t, tools.ActionNone, out.Action)
}

// =============================================================================
// SHELL TOOL
// =============================================================================

func TestHandleToolCall_Shell(t *testing.T) {
	c := newKimi(t)

	args := map[string]any{"command": `gh pr create --title "x"`, "timeout": 120}
	out := c.HandleToolCall("bash", args)
	assert.Equal(t, `gh pr create --title "x" --body "`+kimiSig+`"`, args["command"])
	assert.Equal(t, tools.ActionBodyFlag, out.Action)
	assert.True(t, out.Mutated)
	assert.Equal(t, 120, args["timeout"])

	args = map[string]any{"command": `git commit -m "fix bug"`}
	c.HandleToolCall("bash", args)
	assert.Equal(t, `git commit -m "fix bug" -m "`+kimiSig+`"`, args["command"])

	args = map[string]any{"command": "ls -la"}
	out = c.HandleToolCall("bash", args)
	assert.Equal(t, "ls -la", args["command"])
	assert.Equal(t, tools.ActionNone, out.Action)
	assert.False(t, out.Mutated)

	args = map[string]any{"command": []string{"git", "commit"}}
	out = c.HandleToolCall("bash", args)
	assert.Equal(t, tools.ActionMalformed, out.Action)
	assert.Error(t, out.Err)
}

func TestHandleToolCall_ShellFamiliesFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GitCommit = false
	c := New(cfg)

	args := map[string]any{"command": `git commit -m x`}
	c.HandleToolCall("bash", args)
	assert.Equal(t, `git commit -m x`, args["command"])
}

// =============================================================================
// UNTARGETED TOOLS
// =============================================================================

func TestHandleToolCall_Untargeted(t *testing.T) {
	c := newKimi(t)
	for _, tool := range []string{"read", "write", "Bash", "github_list_issues", ""} {
		args := map[string]any{"body": "x", "command": "git commit -m y"}
		out := c.HandleToolCall(tool, args)

		assert.Equal(t, "x", args["body"], tool)
		assert.Equal(t, "git commit -m y", args["command"], tool)
		assert.Equal(t, "none", out.Kind)
		assert.False(t, out.Mutated)
	}
	assert.Empty(t, c.History())
	assert.Equal(t, 5, c.Stats().Calls)
	assert.Equal(t, 0, c.Stats().Targeted)
}

// =============================================================================
// RECOVERY
// =============================================================================

func TestHandleToolCall_RecoversPanic(t *testing.T) {
	c := newKimi(t)
	c.beforeHandle = func(tool string) { panic("boom " + tool) }

	args := map[string]any{"body": "text"}
	var out Outcome
	require.NotPanics(t, func() {
		out = c.HandleToolCall(tools.GitHubCreateIssue, args)
	})

	assert.Equal(t, "text", args["body"])
	assert.Equal(t, tools.ActionMalformed, out.Action)
	assert.False(t, out.Mutated)
	assert.ErrorContains(t, out.Err, "boom github_create_issue")
	assert.Equal(t, 1, c.Stats().Recovered)
}

// =============================================================================
// RECONFIGURE
// =============================================================================

func TestReconfigure(t *testing.T) {
	c := newKimi(t)

	cfg := DefaultConfig()
	cfg.Codec = signature.New("✨", "Acme", "https://acme.test")
	cfg.Registry = tools.NewRegistryWithExtras([]string{"gitlab_create_issue"}, nil)
	c.Reconfigure(cfg)

	assert.Equal(t, "Kimi", c.DisplayName())

	args := map[string]any{"body": "Hi"}
	out := c.HandleToolCall("gitlab_create_issue", args)
	assert.True(t, out.Mutated)
	assert.Equal(t, "Hi\n\n✨ Generated with [Acme](https://acme.test) (Kimi)", args["body"])
}

// =============================================================================
// HISTORY, STATS AND LOGGING
// =============================================================================

func TestHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	c := New(cfg)

	for i := 0; i < 5; i++ {
		c.HandleToolCall("bash", map[string]any{"command": fmt.Sprintf("echo %d", i)})
	}

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, "echo 2", history[0].Before)
	assert.Equal(t, "echo 4", history[2].Before)
}

func TestStats(t *testing.T) {
	c := newKimi(t)
	c.HandleToolCall("github_create_issue", map[string]any{"body": "a"})
	c.HandleToolCall("bash", map[string]any{"command": "ls"})
	c.HandleToolCall("read", map[string]any{})

	s := c.Stats()
	assert.Equal(t, 3, s.Calls)
	assert.Equal(t, 2, s.Targeted)
	assert.Equal(t, 1, s.Mutated)
	assert.Equal(t, "Kimi", s.DisplayName)
	assert.Equal(t, "kimi", s.ModelID)
	assert.Equal(t, 1, s.ByAction["body-append"])
	assert.Equal(t, 2, s.ByAction["none"])
	assert.Equal(t, 1, s.ByTool["bash"])
	assert.NotContains(t, s.ByTool, "read")
}

func TestLogsOneLinePerCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultConfig()
	cfg.Logger = zap.New(core)
	c := New(cfg)
	c.HandleModelUpdate(model.StringIdentity("kimi"))
	before := logs.Len()

	c.HandleToolCall("github_create_issue", map[string]any{})
	c.HandleToolCall("read", map[string]any{})

	entries := logs.All()[before:]
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "body-set", entries[0].ContextMap()["action"])
	assert.Equal(t, true, entries[0].ContextMap()["mutated"])
	assert.Equal(t, "Kimi", entries[0].ContextMap()["model"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentEvents(t *testing.T) {
	c := New(DefaultConfig())
	names := []string{"kimi", "gpt-4o", "claude-sonnet-4"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.HandleModelUpdate(model.StringIdentity(names[i%len(names)]))
		}(i)
		go func() {
			defer wg.Done()
			args := map[string]any{"body": "text"}
			out := c.HandleToolCall("github_create_issue", args)
			assert.True(t, out.Mutated)
			assert.True(t, strings.HasPrefix(args["body"].(string), "text\n\n🤖 Generated with [OpenCode]"))
			assert.Equal(t, 1, signature.Default().Count(args["body"].(string)))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.Stats().Calls)
	assert.Equal(t, 50, c.Stats().ModelUpdates)
}
