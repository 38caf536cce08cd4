// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"sort"
	"strings"
)

// =============================================================================
// TOOL KINDS
// =============================================================================

// Kind says how a tool's arguments carry signable text.
type Kind int

const (
	// KindNone - not a targeted tool, arguments pass through
	KindNone Kind = iota

	// KindStructured - issue tracker tool with a "body" argument
	KindStructured

	// KindShell - shell tool with a "command" argument
	KindShell
)

// String returns the string representation of a kind.
func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindShell:
		return "shell"
	default:
		return "none"
	}
}

// Argument names read and written by the coordinator.
const (
	BodyArg    = "body"
	CommandArg = "command"
)

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool is one targeted host tool.
type Tool struct {
	// Name is the exact, case-sensitive identifier the host dispatches.
	Name string

	// Kind selects structured body mutation or command rewriting.
	Kind Kind

	// Description is shown by the CLI.
	Description string

	// Builtin is false for identifiers added through config.
	Builtin bool
}

// Field returns the argument this tool's signable text lives in.
func (t *Tool) Field() string {
	if t.Kind == KindShell {
		return CommandArg
	}
	return BodyArg
}

// Built-in tool identifiers.
const (
	GitHubCreatePullRequest = "github_create_pull_request"
	GitHubUpdatePullRequest = "github_update_pull_request"
	GitHubCreateIssue       = "github_create_issue"
	GitHubUpdateIssue       = "github_update_issue"

	// BridgedPrefix is prepended by the host's MCP bridge.
	BridgedPrefix = "mcp__github__"

	ShellTool = "bash"
)

var structuredBuiltins = []struct {
	name string
	desc string
}{
	{GitHubCreatePullRequest, "Create a pull request"},
	{GitHubUpdatePullRequest, "Update a pull request"},
	{GitHubCreateIssue, "Create an issue"},
	{GitHubUpdateIssue, "Update an issue"},
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds the targeted tools. A Registry is not mutated after it is
// handed to a coordinator; reconfiguration builds a new one.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates a registry with the built-in tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	r.RegisterBuiltins()
	return r
}

// NewRegistryWithExtras creates a registry with the built-in tools plus
// extra structured and shell identifiers. Blank identifiers are skipped.
func NewRegistryWithExtras(structured, shell []string) *Registry {
	r := NewRegistry()
	for _, name := range structured {
		r.registerExtra(name, KindStructured)
	}
	for _, name := range shell {
		r.registerExtra(name, KindShell)
	}
	return r
}

// RegisterBuiltins registers the native and bridged issue tracker tools and
// the shell tool.
func (r *Registry) RegisterBuiltins() {
	for _, b := range structuredBuiltins {
		r.Register(&Tool{Name: b.name, Kind: KindStructured, Description: b.desc, Builtin: true})
		r.Register(&Tool{
			Name:        BridgedPrefix + strings.TrimPrefix(b.name, "github_"),
			Kind:        KindStructured,
			Description: b.desc + " (MCP bridge)",
			Builtin:     true,
		})
	}
	r.Register(&Tool{Name: ShellTool, Kind: KindShell, Description: "Run a shell command", Builtin: true})
}

func (r *Registry) registerExtra(name string, kind Kind) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if _, exists := r.tools[name]; exists {
		return
	}
	r.Register(&Tool{Name: name, Kind: kind, Description: "Configured " + kind.String() + " tool"})
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool *Tool) {
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by exact name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// KindOf returns the kind of a tool, KindNone if it is not targeted.
func (r *Registry) KindOf(name string) Kind {
	if r == nil {
		return KindNone
	}
	if t := r.tools[name]; t != nil {
		return t.Kind
	}
	return KindNone
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
