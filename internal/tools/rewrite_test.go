// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentsig/internal/signature"
)

const kimiSig = "🤖 Generated with [OpenCode](https://opencode.ai) (Kimi)"

func newTestRewriter() *Rewriter {
	return NewRewriter(signature.Default())
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestRewrite_Scenarios(t *testing.T) {
	sig := signature.Render("Kimi")
	require.Equal(t, kimiSig, sig)

	tests := []struct {
		name    string
		command string
		want    string
		action  Action
	}{
		{
			name:    "gh pr create without body",
			command: `gh pr create --title "x"`,
			want:    `gh pr create --title "x" --body "` + kimiSig + `"`,
			action:  ActionBodyFlag,
		},
		{
			name:    "git commit with message",
			command: `git commit -m "fix bug"`,
			want:    `git commit -m "fix bug" -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "gh body in double quotes",
			command: `gh pr create --title "x" --body "Adds feature"`,
			want:    "gh pr create --title \"x\" --body \"Adds feature\n\n" + kimiSig + "\"",
			action:  ActionBodySplice,
		},
		{
			name:    "gh body in single quotes",
			command: `gh issue create -t bug --body 'Steps to reproduce'`,
			want:    "gh issue create -t bug --body 'Steps to reproduce\n\n" + kimiSig + "'",
			action:  ActionBodySplice,
		},
		{
			name:    "gh body with equals",
			command: `gh pr create --body="text"`,
			want:    "gh pr create --body=\"text\n\n" + kimiSig + "\"",
			action:  ActionBodySplice,
		},
		{
			name:    "gh short body flag",
			command: `gh pr comment 12 -b "looks good"`,
			want:    "gh pr comment 12 -b \"looks good\n\n" + kimiSig + "\"",
			action:  ActionBodySplice,
		},
		{
			name:    "gh empty body",
			command: `gh pr comment 12 --body ""`,
			want:    `gh pr comment 12 --body "` + kimiSig + `"`,
			action:  ActionBodySplice,
		},
		{
			name:    "gh body not isolable",
			command: `gh pr create --body "a"b`,
			want:    `gh pr create --body "a"b --body "` + kimiSig + `"`,
			action:  ActionBodyFlag,
		},
		{
			name:    "gh body flag without value",
			command: `gh pr review --approve --body`,
			want:    `gh pr review --approve --body --body "` + kimiSig + `"`,
			action:  ActionBodyFlag,
		},
		{
			name:    "combined short flags",
			command: `git commit -am "wip"`,
			want:    `git commit -am "wip" -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "long message flag",
			command: `git commit --message="wip"`,
			want:    `git commit --message="wip" -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "attached message",
			command: `git commit -m"wip"`,
			want:    `git commit -m"wip" -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "chained commit keeps other segments",
			command: `git add . && git commit -m "fix" && git push`,
			want:    `git add . && git commit -m "fix" -m "` + kimiSig + `" && git push`,
			action:  ActionCommitMessage,
		},
		{
			name:    "separator inside message",
			command: `git commit -m "build && deploy; done"`,
			want:    `git commit -m "build && deploy; done" -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "trailing whitespace preserved",
			command: "git commit -m \"x\"  ",
			want:    "git commit -m \"x\" -m \"" + kimiSig + "\"  ",
			action:  ActionCommitMessage,
		},
		{
			name:    "commit in later segment",
			command: `echo hi; git commit -m x`,
			want:    `echo hi; git commit -m x -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "commit on a later line",
			command: "git add .\ngit commit -m \"fix\"",
			want:    "git add .\ngit commit -m \"fix\" -m \"" + kimiSig + "\"",
			action:  ActionCommitMessage,
		},
		{
			name:    "line continuation",
			command: "git commit \\\n  -m \"fix\"",
			want:    "git commit \\\n  -m \"fix\" -m \"" + kimiSig + "\"",
			action:  ActionCommitMessage,
		},
		{
			name:    "environment assignment prefix",
			command: `GIT_AUTHOR_NAME=bot git commit -m "fix"`,
			want:    `GIT_AUTHOR_NAME=bot git commit -m "fix" -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "quoted assignment prefix",
			command: `A="x y" B=2 gh issue create -t bug`,
			want:    `A="x y" B=2 gh issue create -t bug --body "` + kimiSig + `"`,
			action:  ActionBodyFlag,
		},
		{
			name:    "subshell",
			command: `(cd repo && git commit -m "fix")`,
			want:    `(cd repo && git commit -m "fix" -m "` + kimiSig + `")`,
			action:  ActionCommitMessage,
		},
		{
			name:    "subshell opened in segment",
			command: `(git commit -m "fix")`,
			want:    `(git commit -m "fix" -m "` + kimiSig + `")`,
			action:  ActionCommitMessage,
		},
		{
			name:    "background job",
			command: `git commit -m "fix" &`,
			want:    `git commit -m "fix" -m "` + kimiSig + `" &`,
			action:  ActionCommitMessage,
		},
		{
			name:    "background subshell",
			command: `(gh pr create --title x) &`,
			want:    `(gh pr create --title x --body "` + kimiSig + `") &`,
			action:  ActionBodyFlag,
		},
		{
			name:    "redirection stays in place",
			command: `git commit -m x 2>&1`,
			want:    `git commit -m x 2>&1 -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "command substitution in message",
			command: `git commit -m $(cat msg.txt)`,
			want:    `git commit -m $(cat msg.txt) -m "` + kimiSig + `"`,
			action:  ActionCommitMessage,
		},
		{
			name:    "case insensitive command",
			command: `GH PR CREATE --title x`,
			want:    `GH PR CREATE --title x --body "` + kimiSig + `"`,
			action:  ActionBodyFlag,
		},
	}

	r := newTestRewriter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Apply(tt.command, sig)
			if diff := cmp.Diff(tt.want, res.Command); diff != "" {
				t.Errorf("Apply(%q) mismatch (-want +got):\n%s", tt.command, diff)
			}
			assert.Equal(t, tt.action, res.Action)
			assert.True(t, res.Action.Mutates())
			assert.Equal(t, 1, signature.Default().Count(res.Command))
		})
	}
}

// =============================================================================
// NON-INTERFERENCE
// =============================================================================

func TestRewrite_Unchanged(t *testing.T) {
	commands := []string{
		`ls -la`,
		`git status`,
		`git commit --amend --no-edit`,
		`git commit -F msg.txt`,
		`git commit -m`,
		`git log | grep fix`,
		`gh pr list`,
		`gh pr merge 12 --squash`,
		`gh repo create`,
		`echo "git commit -m x"`,
		`echo 'gh pr create --title x'`,
		`git commit -m "unterminated`,
		`gh pr create --body 'open`,
		`gh pr create --title x --body-file notes.md`,
		`gh pr create -F notes.md`,
		`gh issue comment 7 --body-file=-`,
		`gh pr create --body "x" -F notes.md`,
		`(git commit -m x) > log.txt`,
		`git commit -m x & echo started`,
		`echo FOO=1 git commit -m x`,
		"echo 'a\ngit commit -m x'",
		``,
	}

	r := newTestRewriter()
	for _, cmd := range commands {
		t.Run(cmd, func(t *testing.T) {
			res := r.Apply(cmd, kimiSig)
			assert.Equal(t, cmd, res.Command)
			assert.Equal(t, ActionNone, res.Action)
			assert.Equal(t, -1, res.Segment)
		})
	}
}

func TestRewrite_FamilyOrder(t *testing.T) {
	// git commit is tried on every segment before gh is tried on any.
	cmd := `gh pr create --title x && git commit -m y`
	res := newTestRewriter().Apply(cmd, kimiSig)

	assert.Equal(t, FamilyGitCommit, res.Family)
	assert.Equal(t, 1, res.Segment)
	assert.Equal(t, `gh pr create --title x && git commit -m y -m "`+kimiSig+`"`, res.Command)
}

func TestRewrite_OnlyFirstMatch(t *testing.T) {
	cmd := `git commit -m a; git commit -m b`
	got := newTestRewriter().Rewrite(cmd, kimiSig)
	assert.Equal(t, `git commit -m a -m "`+kimiSig+`"; git commit -m b`, got)
}

func TestRewrite_FamiliesDisabled(t *testing.T) {
	r := newTestRewriter().WithFamilies(false, true)
	cmd := `git commit -m "fix bug"`
	assert.Equal(t, cmd, r.Rewrite(cmd, kimiSig))

	gh := `gh issue create --title t`
	assert.NotEqual(t, gh, r.Rewrite(gh, kimiSig))

	none := r.WithFamilies(false, false)
	assert.Equal(t, gh, none.Rewrite(gh, kimiSig))
}

// =============================================================================
// IDEMPOTENCE AND ESCAPING
// =============================================================================

func TestRewrite_Idempotent(t *testing.T) {
	commands := []string{
		`git commit -m "fix bug"`,
		`gh pr create --title "x"`,
		`gh pr create --body 'Steps'`,
		`gh pr create --body "a"b`,
		`git add -A && git commit -am wip || true`,
	}

	r := newTestRewriter()
	for _, cmd := range commands {
		once := r.Rewrite(cmd, kimiSig)
		twice := r.Rewrite(once, kimiSig)
		assert.Equal(t, once, twice, cmd)

		res := r.Apply(once, kimiSig)
		assert.Equal(t, ActionAlreadySigned, res.Action)
		assert.False(t, res.Action.Mutates())
	}
}

func TestRewrite_AlreadySignedUsesCodecMarker(t *testing.T) {
	other := signature.New("", "Acme", "https://acme.test")
	r := NewRewriter(other)

	// The default OpenCode marker does not count as signed for another host.
	cmd := `git commit -m "x ` + signature.Render("Kimi") + `"`
	res := r.Apply(cmd, other.Render("Kimi"))
	assert.Equal(t, ActionCommitMessage, res.Action)
	assert.Equal(t, other, r.Codec())
}

func TestRewrite_EscapesDisplayName(t *testing.T) {
	sig := signature.Render(`Model "$HOME" \ ` + "`x`")
	got := newTestRewriter().Rewrite(`git commit -m x`, sig)

	want := `git commit -m x -m "🤖 Generated with [OpenCode](https://opencode.ai) (Model \"\$HOME\" \\ \` + "`x\\`" + `)"`
	assert.Equal(t, want, got)
}

func TestRewrite_SingleQuoteFallback(t *testing.T) {
	sig := signature.Render("O'Brien")
	got := newTestRewriter().Apply(`gh pr create --body 'Notes'`, sig)

	assert.Equal(t, ActionBodyFlag, got.Action)
	assert.Equal(t, `gh pr create --body 'Notes' --body "`+sig+`"`, got.Command)
}

func TestEscapeDoubleQuoted(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, `plain`},
		{`a"b`, `a\"b`},
		{`a\b`, `a\\b`},
		{`\"`, `\\\"`},
		{`$x`, `\$x`},
		{"`x`", "\\`x\\`"},
		{`it's`, `it's`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeDoubleQuoted(tt.in), tt.in)
	}
}
