// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Offline commands: rewrite, name, sign and version.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/session"
	"github.com/jeranaias/agentsig/internal/tools"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// offlineCoordinator builds a coordinator for a single local operation.
func (a *App) offlineCoordinator() *session.Coordinator {
	return session.New(SessionConfig(a.cfg, a.logger))
}

// =============================================================================
// REWRITE
// =============================================================================

// RewriteResult is the --json output of rewrite and sign.
type RewriteResult struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Action  string `json:"action"`
	Mutated bool   `json:"mutated"`
	Model   string `json:"model"`
	Error   string `json:"error,omitempty"`
}

func newRewriteCommand(app *App) *cobra.Command {
	var tool string

	cmd := &cobra.Command{
		Use:   "rewrite <command...>",
		Short: "Show how a shell command would be signed",
		Long: `Runs a shell command line through the rewriter and prints the result. The
command is not executed. Quote the whole command to keep your shell from
interpreting it.`,
		Example: `  agentsig rewrite -m kimi 'git commit -m "fix bug"'
  agentsig rewrite --json 'gh pr create --title "x"'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord := app.offlineCoordinator()
			input := strings.Join(args, " ")

			callArgs := map[string]any{tools.CommandArg: input}
			out := coord.HandleToolCall(tool, callArgs)
			output, _ := callArgs[tools.CommandArg].(string)

			return app.printRewrite(RewriteResult{
				Input:   input,
				Output:  output,
				Action:  string(out.Action),
				Mutated: out.Mutated,
				Model:   out.Model,
				Error:   out.ErrorMessage(),
			}, coord.Signature())
		},
	}
	cmd.Flags().StringVar(&tool, "tool", tools.ShellTool, "shell tool identifier to simulate")
	// Flags after the first word belong to the simulated command.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (a *App) printRewrite(res RewriteResult, sig string) error {
	if a.jsonOutput {
		return printJSON(a.out, res)
	}
	fmt.Fprintln(a.out, HighlightSignature(res.Output, sig))
	fmt.Fprintln(a.errOut, DimStyle.Render("action: ")+RenderAction(res.Action, res.Mutated)+
		DimStyle.Render("  model: "+res.Model))
	if res.Error != "" {
		return errorf(2, "%s", res.Error)
	}
	return nil
}

// =============================================================================
// NAME
// =============================================================================

// NameResult is one line of name --json output.
type NameResult struct {
	ID          string `json:"id"`
	Normalized  string `json:"normalized"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider,omitempty"`
	Known       bool   `json:"known"`
}

func newNameCommand(app *App) *cobra.Command {
	var (
		list     bool
		provider string
	)

	cmd := &cobra.Command{
		Use:   "name <model-id...>",
		Short: "Print the display name for model identifiers",
		Example: `  agentsig name claude-sonnet-4-5-20250929
  agentsig name --list`,
		Annotations: map[string]string{"setup": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return app.printNameTable(provider)
			}
			if len(args) == 0 {
				return fmt.Errorf("requires at least one model identifier (or --list)")
			}

			results := make([]NameResult, 0, len(args))
			for _, id := range args {
				normalized := model.Normalize(id)
				entry, known := model.Lookup(normalized)
				results = append(results, NameResult{
					ID:          id,
					Normalized:  normalized,
					DisplayName: model.FormatID(id),
					Provider:    entry.Provider,
					Known:       known,
				})
			}

			if app.jsonOutput {
				return printJSON(app.out, results)
			}
			for _, r := range results {
				if len(results) == 1 {
					fmt.Fprintln(app.out, r.DisplayName)
					continue
				}
				fmt.Fprintf(app.out, "%s\t%s\n", r.ID, r.DisplayName)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list the known models by provider")
	cmd.Flags().StringVar(&provider, "provider", "", "with --list, only this provider")
	return cmd
}

func (a *App) printNameTable(provider string) error {
	entries := model.Names
	if provider != "" {
		entries = model.EntriesByProvider(provider)
	}
	if a.jsonOutput {
		return printJSON(a.out, entries)
	}

	current := ""
	for _, e := range entries {
		if e.Provider != current {
			current = e.Provider
			fmt.Fprintln(a.out, SectionStyle.Render(current))
		}
		fmt.Fprintf(a.out, "  %s%s\n", RenderLabel(e.Key), e.Name)
	}
	return nil
}

// =============================================================================
// SIGN
// =============================================================================

func newSignCommand(app *App) *cobra.Command {
	var tool string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a pull request or issue body read from stdin",
		Long: `Reads a body from stdin and prints it with the signature appended, exactly
as a structured GitHub tool call would be signed. Bodies that already carry
the signature are printed unchanged.`,
		Example: `  echo "Fixes #12" | agentsig sign -m gpt-5`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(app.in)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			body := strings.TrimRight(string(data), "\n")

			coord := app.offlineCoordinator()
			callArgs := map[string]any{tools.BodyArg: body}
			out := coord.HandleToolCall(tool, callArgs)
			output, _ := callArgs[tools.BodyArg].(string)

			return app.printRewrite(RewriteResult{
				Input:   body,
				Output:  output,
				Action:  string(out.Action),
				Mutated: out.Mutated,
				Model:   out.Model,
				Error:   out.ErrorMessage(),
			}, coord.Signature())
		},
	}
	cmd.Flags().StringVar(&tool, "tool", tools.GitHubCreatePullRequest, "structured tool identifier to simulate")
	return cmd
}

// =============================================================================
// VERSION
// =============================================================================

// VersionInfo is the --json output of version.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"setup": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if app.jsonOutput {
				return printJSON(app.out, info)
			}
			fmt.Fprintf(app.out, "agentsig %s (%s, built %s, %s %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
}
