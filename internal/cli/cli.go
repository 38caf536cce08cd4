// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and per-invocation setup.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/agentsig/internal/config"
	"github.com/jeranaias/agentsig/internal/logging"
)

// Version information (overridden at build time with -ldflags).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App carries what every command needs: the loaded config, a logger and the
// standard streams. One App lives for one invocation.
type App struct {
	// Flags
	configPath string
	verbose    bool
	jsonOutput bool
	model      string

	cfg    *config.Config
	logger *zap.Logger
	level  zap.AtomicLevel

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	app := &App{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "agentsig",
		Short: "Sign pull requests, issues and commits made by AI coding agents",
		Long: `agentsig sits between an AI coding host and its tools. Every pull request,
issue and git commit an agent creates gets a provenance line naming the host
and the model that wrote it:

  🤖 Generated with [OpenCode](https://opencode.ai) (Claude Sonnet 4.5)

Run "agentsig serve" as a stdio child of the host, "agentsig http" as a
loopback service, or "agentsig hook" from per-event hook scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.in = cmd.InOrStdin()
			app.out = cmd.OutOrStdout()
			app.errOut = cmd.ErrOrStderr()
			if skipsSetup(cmd) {
				return nil
			}
			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = app.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "config file (default: first of ~/.agentsig/config.{toml,yaml,json})")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&app.jsonOutput, "json", false, "machine-readable output")
	flags.StringVarP(&app.model, "model", "m", "", "model identifier to sign as (overrides default_model)")

	root.AddCommand(
		newServeCommand(app),
		newHTTPCommand(app),
		newHookCommand(app),
		newRewriteCommand(app),
		newNameCommand(app),
		newSignCommand(app),
		newTryCommand(app),
		newHistoryCommand(app),
		newStatusCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// skipsSetup reports commands that must work without a valid config.
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["setup"] == "skip" {
			return true
		}
	}
	return false
}

// setup loads config and builds the logger.
func (a *App) setup() error {
	cfg, err := a.reload()
	if err != nil {
		return err
	}
	config.SetGlobal(cfg)
	a.cfg = cfg

	opts := logging.FromConfig(cfg.Logging)
	opts.Verbose = a.verbose
	logger, level, err := logging.New(opts)
	if err != nil {
		return err
	}
	a.logger = logger
	a.level = level
	return nil
}

// watchPath returns the config file to watch for reloads, or "".
func (a *App) watchPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	path, err := config.FindConfigFile()
	if err != nil || path == "" {
		path, _ = config.ConfigPathTOML()
	}
	return path
}

// reload re-reads the config the way setup did.
func (a *App) reload() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if a.model != "" {
		cfg.DefaultModel = a.model
	}
	return cfg, nil
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// ExitError carries a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command with signal-aware context and returns the
// process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err != nil {
				fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), exitErr.Err)
			}
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}
