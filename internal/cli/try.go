// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// try.go - Interactive rewrite playground.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agentsig/internal/config"
	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/session"
	"github.com/jeranaias/agentsig/internal/tools"
)

const tryHelp = `Type a shell command to see how it would be signed.

  /model <id>     switch the active model (e.g. /model kimi)
  /body <text>    sign a pull request body
  /sig            show the current signature
  /stats          show session counters
  /help           this text
  /quit           exit (or Ctrl+D)`

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader wraps liner with a persistent history file.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "try_history")}

	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *lineReader) read(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// close saves history with owner-only permissions.
func (r *lineReader) close() {
	defer r.line.Close()
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// =============================================================================
// COMMAND
// =============================================================================

func newTryCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "try",
		Short: "Interactive playground for command rewriting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := RequiresTTY("try commands"); err != nil {
				return err
			}

			coord := app.offlineCoordinator()
			reader := newLineReader()
			defer reader.close()

			fmt.Fprintln(app.out, TitleStyle.Render("agentsig try"))
			fmt.Fprintln(app.out, DimStyle.Render(tryHelp))
			fmt.Fprintln(app.out)

			for {
				input, err := reader.read(coord.DisplayName() + "> ")
				if err != nil {
					if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
						fmt.Fprintln(app.out)
						return nil
					}
					return err
				}
				if quit := evalTryLine(app.out, coord, input); quit {
					return nil
				}
			}
		},
	}
}

// evalTryLine handles one line of input. It returns true on /quit.
func evalTryLine(w io.Writer, coord *session.Coordinator, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}

	if !strings.HasPrefix(input, "/") {
		args := map[string]any{tools.CommandArg: input}
		out := coord.HandleToolCall(tools.ShellTool, args)
		printTryResult(w, coord, out, args[tools.CommandArg])
		return false
	}

	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		fmt.Fprintln(w, tryHelp)
	case "/model":
		if rest == "" {
			fmt.Fprintln(w, RenderField("Model", coord.DisplayName()))
			break
		}
		coord.HandleModelUpdate(model.StringIdentity(rest))
		fmt.Fprintln(w, RenderField("Model", coord.DisplayName()))
	case "/body":
		args := map[string]any{tools.BodyArg: rest}
		out := coord.HandleToolCall(tools.GitHubCreatePullRequest, args)
		printTryResult(w, coord, out, args[tools.BodyArg])
	case "/sig":
		fmt.Fprintln(w, coord.Signature())
	case "/stats":
		st := coord.Stats()
		fmt.Fprintln(w, RenderField("Calls", fmt.Sprint(st.Calls)))
		fmt.Fprintln(w, RenderField("Signed", fmt.Sprint(st.Mutated)))
		actions := make([]string, 0, len(st.ByAction))
		for action := range st.ByAction {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		for _, action := range actions {
			fmt.Fprintln(w, RenderField("  "+action, fmt.Sprint(st.ByAction[action])))
		}
	default:
		fmt.Fprintln(w, WarningStyle.Render("unknown command "+name+"; try /help"))
	}
	return false
}

func printTryResult(w io.Writer, coord *session.Coordinator, out session.Outcome, result any) {
	text, _ := result.(string)
	fmt.Fprintln(w, HighlightSignature(text, coord.Signature()))
	line := DimStyle.Render("  ") + RenderAction(string(out.Action), out.Mutated)
	if msg := out.ErrorMessage(); msg != "" {
		line += " " + ErrorStyle.Render(msg)
	}
	fmt.Fprintln(w, line)
}
