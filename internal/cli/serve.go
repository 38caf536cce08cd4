// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Transport commands: serve (stdio), http and hook.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/agentsig/internal/config"
	"github.com/jeranaias/agentsig/internal/hook"
	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/server"
	"github.com/jeranaias/agentsig/internal/session"
	"github.com/jeranaias/agentsig/internal/util"
)

// =============================================================================
// SERVE (STDIO)
// =============================================================================

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer host events as NDJSON over stdin/stdout",
		Long: `Reads one JSON event per line from stdin and writes one JSON response per
line to stdout. Logs go to stderr (or logging.file). Runs until stdin closes
or the process is interrupted.

Events:
  {"type":"chat.params","model":"kimi"}
  {"id":1,"type":"tool.execute.before","tool":"bash","args":{"command":"git commit -m x"}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := app.newRuntime()
			defer rt.close()

			app.logger.Info("serving stdio", rt.describe()...)
			return rt.run(cmd.Context(), func(ctx context.Context) error {
				return rt.handler.Serve(ctx, app.in, app.out)
			})
		},
	}
}

// =============================================================================
// HTTP
// =============================================================================

func newHTTPCommand(app *App) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Answer host events over a loopback HTTP API",
		Long: `Serves POST /v1/events, /v1/events/model and /v1/events/tool plus
GET /v1/session, /v1/stats and /health. Set server.token to require a bearer
token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				app.cfg.Server.Listen = listen
			}

			rt := app.newRuntime()
			defer rt.close()

			var opts []server.Option
			if rt.ledger != nil {
				opts = append(opts, server.WithLedger(rt.ledger), server.WithWriter(rt.writer))
			}
			srv := server.New(server.ConfigFrom(app.cfg.Server, Version), rt.handler, app.logger, opts...)

			app.logger.Info("serving http", append(rt.describe(), zap.String("addr", srv.Addr()))...)
			return rt.run(cmd.Context(), srv.ListenAndServe)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen)")
	return cmd
}

// =============================================================================
// HOOK (ONE-SHOT)
// =============================================================================

// hookState is the session carried between one-shot hook invocations.
type hookState struct {
	Model     *model.Identity `json:"model"`
	SessionID string          `json:"session_id"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func hookStatePath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hook-state.json"), nil
}

func loadHookState() (hookState, error) {
	var st hookState
	path, err := hookStatePath()
	if err != nil {
		return st, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

func saveHookState(st hookState) error {
	path, err := hookStatePath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0600)
}

func newHookCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Handle a single event from stdin (for per-event hook scripts)",
		Long: `One-shot mode for hosts that spawn a process per event. The event is read
from stdin and the response written to stdout. The last model seen by
"hook model" is remembered in hook-state.json so later "hook tool" calls
sign with it.`,
	}

	run := func(fallback string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt := app.newRuntime()
			defer rt.close()

			st, err := loadHookState()
			if err != nil {
				app.logger.Warn("hook state unreadable; starting fresh", zap.Error(err))
			}
			if st.Model != nil && app.model == "" {
				rt.coord.HandleModelUpdate(st.Model)
			}

			var outcome *session.Outcome
			rt.handler = hook.NewHandler(rt.coord,
				hook.WithLogger(app.logger.Named("hook")),
				hook.WithObserver(func(o session.Outcome) { outcome = &o }))

			resp, err := rt.handler.HandleOnce(app.in, app.out, fallback)
			if err != nil {
				return err
			}
			if outcome != nil {
				rt.recordNow(cmd.Context(), *outcome)
			}

			if hook.IsModelEvent(resp.Type) && resp.Error == "" {
				st.Model = model.StringIdentity(rt.coord.Stats().ModelID)
				st.SessionID = rt.coord.SessionID()
				st.UpdatedAt = time.Now()
				if err := saveHookState(st); err != nil {
					app.logger.Warn("could not save hook state", zap.Error(err))
				}
			}
			if resp.Error != "" {
				return &ExitError{Code: 2}
			}
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "tool",
			Short: "Handle a tool.execute.before event",
			Args:  cobra.NoArgs,
			RunE:  run(hook.EventToolBefore),
		},
		&cobra.Command{
			Use:   "model",
			Short: "Handle a chat.params model event",
			Args:  cobra.NoArgs,
			RunE:  run(hook.EventChatParams),
		},
	)
	return cmd
}
