// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"regexp"
	"strings"

	"github.com/jeranaias/agentsig/internal/signature"
)

// =============================================================================
// ACTIONS
// =============================================================================

// Action names what a rewrite did to a tool call.
type Action string

const (
	ActionNone          Action = "none"
	ActionAlreadySigned Action = "already-signed"
	ActionCommitMessage Action = "commit-message" // extra -m paragraph
	ActionBodySplice    Action = "body-splice"    // signature spliced into --body value
	ActionBodyFlag      Action = "body-flag"      // --body flag appended
	ActionBodyAppend    Action = "body-append"    // structured body extended
	ActionBodySet       Action = "body-set"       // structured body was empty
	ActionMalformed     Action = "malformed"
)

// Mutates reports whether the action changed the arguments.
func (a Action) Mutates() bool {
	switch a {
	case ActionCommitMessage, ActionBodySplice, ActionBodyFlag, ActionBodyAppend, ActionBodySet:
		return true
	}
	return false
}

// Result describes one command rewrite.
type Result struct {
	Command string
	Action  Action

	// Family is the command family that matched, empty if none did.
	Family string

	// Segment is the index of the rewritten segment, -1 if none was.
	Segment int
}

// =============================================================================
// ESCAPING
// =============================================================================

var doubleQuoteEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)

// EscapeDoubleQuoted escapes s for use inside a double-quoted shell word.
func EscapeDoubleQuoted(s string) string {
	return doubleQuoteEscaper.Replace(s)
}

// =============================================================================
// COMMAND FAMILIES
// =============================================================================

const (
	FamilyGitCommit = "git-commit"
	FamilyGitHub    = "gh"
)

var (
	gitCommitPattern = regexp.MustCompile(`(?i)^git\s+commit\b`)
	ghPattern        = regexp.MustCompile(`(?i)^gh\s+(pr|issue)\s+(create|comment|review)\b`)

	// -m, -am, -m"msg", -am'msg'
	shortMessageFlag = regexp.MustCompile(`^-[A-Za-z]*m(["']|$)`)
)

// family rewrites one segment or reports no match. apply receives the
// segment from its command word on.
type family struct {
	name    string
	pattern *regexp.Regexp
	apply   func(segment, sig string) (string, Action, bool)
}

// =============================================================================
// REWRITER
// =============================================================================

// Rewriter injects a signature into shell command lines.
type Rewriter struct {
	codec     signature.Codec
	gitCommit bool
	gitHub    bool
}

// NewRewriter returns a rewriter with every command family enabled.
func NewRewriter(codec signature.Codec) *Rewriter {
	return &Rewriter{codec: codec, gitCommit: true, gitHub: true}
}

// WithFamilies returns a copy of r with the given families enabled.
func (r *Rewriter) WithFamilies(gitCommit, gitHub bool) *Rewriter {
	cp := *r
	cp.gitCommit = gitCommit
	cp.gitHub = gitHub
	return &cp
}

// Codec returns the codec used for signature detection.
func (r *Rewriter) Codec() signature.Codec {
	return r.codec
}

func (r *Rewriter) families() []family {
	var out []family
	if r.gitCommit {
		out = append(out, family{FamilyGitCommit, gitCommitPattern, rewriteGitCommit})
	}
	if r.gitHub {
		out = append(out, family{FamilyGitHub, ghPattern, rewriteGitHub})
	}
	return out
}

// Rewrite returns command with sig injected into the first recognised
// commit or gh segment, or command unchanged.
func (r *Rewriter) Rewrite(command, sig string) string {
	return r.Apply(command, sig).Command
}

// Apply is Rewrite with a description of what was done.
//
// Families are tried in order and, within a family, segments left to right.
// A family only matches at the command word of a segment, after any leading
// blanks, subshell parens and NAME=value assignments. At most one segment is
// rewritten; all other bytes are preserved.
func (r *Rewriter) Apply(command, sig string) Result {
	if r.codec.HasSignature(command) {
		return Result{Command: command, Action: ActionAlreadySigned, Segment: -1}
	}

	segments := SplitSegments(command)
	for _, fam := range r.families() {
		for idx, seg := range segments {
			text := seg.Text(command)
			lead := commandStart(text)
			if !fam.pattern.MatchString(text[lead:]) {
				continue
			}
			out, action, ok := fam.apply(text[lead:], sig)
			if !ok {
				continue
			}
			return Result{
				Command: command[:seg.Start] + text[:lead] + out + command[seg.End:],
				Action:  action,
				Family:  fam.name,
				Segment: idx,
			}
		}
	}
	return Result{Command: command, Action: ActionNone, Segment: -1}
}

// assignmentPrefix matches the NAME= head of an environment assignment word.
var assignmentPrefix = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// commandStart returns the offset of the command word in segment.
func commandStart(segment string) int {
	i := 0
	for {
		for i < len(segment) && (isBlank(segment[i]) || segment[i] == '(') {
			i++
		}
		m := assignmentPrefix.FindStringIndex(segment[i:])
		if m == nil {
			return i
		}
		i = wordEnd(segment, i+m[1])
	}
}

// wordEnd returns the index of the first unquoted blank at or after i, or
// len(s).
func wordEnd(s string, i int) int {
	state := stateUnquoted
	for i < len(s) {
		if state == stateUnquoted && isBlank(s[i]) {
			return i
		}
		next, n := step(state, s, i)
		state = next
		i += n
	}
	return len(s)
}

// =============================================================================
// FLAG INSERTION
// =============================================================================

const blanks = " \t\r\n"

// appendFlag inserts " <flag> \"<sig>\"" after the last word of the command
// in segment. Trailing blanks, parens closing an enclosing subshell and a
// background "&" stay after it. ok is false when other shell syntax follows
// the command, since a flag placed there would not reach it.
func appendFlag(segment, flag, sig string) (string, bool) {
	at, ok := insertionPoint(segment)
	if !ok {
		return "", false
	}
	return segment[:at] + " " + flag + ` "` + EscapeDoubleQuoted(sig) + `"` + segment[at:], true
}

// insertionPoint finds where appendFlag inserts.
func insertionPoint(segment string) (int, bool) {
	var closers, amps []int
	depth := 0
	state := stateUnquoted
	for i := 0; i < len(segment); {
		if state == stateUnquoted {
			switch segment[i] {
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				} else {
					closers = append(closers, i)
				}
			case '&':
				if isBackground(segment, i) {
					amps = append(amps, i)
				}
			}
		}
		next, n := step(state, segment, i)
		state = next
		i += n
	}

	at := len(strings.TrimRight(segment, blanks))
	for at > 0 && (popAt(&closers, at-1) || popAt(&amps, at-1)) {
		at = len(strings.TrimRight(segment[:at-1], blanks))
	}
	return at, len(closers) == 0 && len(amps) == 0
}

// isBackground reports whether the unquoted "&" at i is a job control
// operator rather than part of a redirection such as 2>&1 or &>file.
func isBackground(s string, i int) bool {
	if i > 0 && (s[i-1] == '>' || s[i-1] == '<') {
		return false
	}
	return i+1 >= len(s) || s[i+1] != '>'
}

// popAt removes the last element of *list if it equals i.
func popAt(list *[]int, i int) bool {
	l := *list
	if len(l) == 0 || l[len(l)-1] != i {
		return false
	}
	*list = l[:len(l)-1]
	return true
}

// =============================================================================
// GIT COMMIT
// =============================================================================

func rewriteGitCommit(segment, sig string) (string, Action, bool) {
	tokens, balanced := tokenize(segment)
	if !balanced || !hasMessageFlag(segment, tokens) {
		return "", ActionNone, false
	}
	out, ok := appendFlag(segment, "-m", sig)
	if !ok {
		return "", ActionNone, false
	}
	return out, ActionCommitMessage, true
}

// hasMessageFlag looks for -m, combined short flags ending in m, or
// --message among the arguments after "git commit".
func hasMessageFlag(segment string, tokens []span) bool {
	for i := 2; i < len(tokens); i++ {
		tok := segment[tokens[i].start:tokens[i].end]
		last := i == len(tokens)-1
		switch {
		case strings.HasPrefix(tok, "--message="):
			return true
		case tok == "--message":
			if !last {
				return true
			}
		case strings.HasPrefix(tok, "--"):
			continue
		case shortMessageFlag.MatchString(tok):
			// A bare -m needs a value after it.
			if tok[len(tok)-1] != 'm' || !last {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// GH PR / ISSUE
// =============================================================================

// bodyValue locates the value of the last --body/-b flag. found is false if
// there is no body flag; ok is false if the flag has no value token. file is
// true when --body-file/-F is present, which gh refuses to combine with
// --body.
func bodyValue(segment string, tokens []span) (value span, found, ok, file bool) {
	for i := 3; i < len(tokens); i++ {
		tok := segment[tokens[i].start:tokens[i].end]
		switch {
		case tok == "--body" || tok == "-b":
			found = true
			if i+1 < len(tokens) {
				value, ok = tokens[i+1], true
				i++
			} else {
				ok = false
			}
		case strings.HasPrefix(tok, "--body="):
			found = true
			value, ok = span{tokens[i].start + len("--body="), tokens[i].end}, true
		case strings.HasPrefix(tok, `-b"`) || strings.HasPrefix(tok, "-b'"):
			found = true
			value, ok = span{tokens[i].start + 2, tokens[i].end}, true
		case tok == "--body-file" || tok == "-F":
			file = true
			i++
		case strings.HasPrefix(tok, "--body-file=") || strings.HasPrefix(tok, "-F"):
			file = true
		}
	}
	return value, found, ok, file
}

func rewriteGitHub(segment, sig string) (string, Action, bool) {
	tokens, balanced := tokenize(segment)
	if !balanced {
		return "", ActionNone, false
	}

	value, found, ok, file := bodyValue(segment, tokens)
	if file {
		return "", ActionNone, false
	}
	if found && ok {
		if out, spliced := spliceBody(segment, value, sig); spliced {
			return out, ActionBodySplice, true
		}
	}
	out, ok := appendFlag(segment, "--body", sig)
	if !ok {
		return "", ActionNone, false
	}
	return out, ActionBodyFlag, true
}

// spliceBody inserts the signature before the closing quote of an isolated
// quoted value.
func spliceBody(segment string, value span, sig string) (string, bool) {
	raw := segment[value.start:value.end]
	quote, ok := isolatedQuote(raw)
	if !ok {
		return "", false
	}

	insert := sig
	switch quote {
	case '"':
		insert = EscapeDoubleQuoted(sig)
	case '\'':
		if strings.ContainsRune(sig, '\'') {
			return "", false
		}
	}
	if len(raw) > 2 {
		insert = "\n\n" + insert
	}

	closing := value.end - 1
	return segment[:closing] + insert + segment[closing:], true
}
