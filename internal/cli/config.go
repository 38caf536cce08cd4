// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - config command.
//
// Subcommands:
//
//	show                Display the effective configuration (token masked)
//	path                Show which file is loaded and where init writes
//	init [--force]      Write the default configuration
//	get <key>           Print one value (dot notation: server.listen)
//	set <key> <value>   Change one value in the config file
//	keys                List every key
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agentsig/internal/config"
)

// skipSetup marks commands that must run even when the config is broken.
var skipSetup = map[string]string{"setup": "skip"}

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.configShow()
			},
		},
		&cobra.Command{
			Use:         "path",
			Short:       "Show configuration file locations",
			Args:        cobra.NoArgs,
			Annotations: skipSetup,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.configPathInfo()
			},
		},
		newConfigInitCommand(app),
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := normalizeKey(args[0])
				value, err := app.cfg.Get(key)
				if err != nil {
					return err
				}
				shown := formatValue(value)
				if key == "server.token" && shown != "" {
					shown = maskSecret(shown)
				}
				fmt.Fprintln(app.out, shown)
				return nil
			},
		},
		&cobra.Command{
			Use:         "set <key> <value>",
			Short:       "Change one value in the config file",
			Example:     "  agentsig config set signature.host_name Crush\n  agentsig config set tools.structured gitlab_create_merge_request",
			Args:        cobra.ExactArgs(2),
			Annotations: skipSetup,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.configSet(normalizeKey(args[0]), args[1])
			},
		},
		&cobra.Command{
			Use:         "keys",
			Short:       "List configuration keys",
			Args:        cobra.NoArgs,
			Annotations: skipSetup,
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, key := range config.GetAllKeys() {
					fmt.Fprintln(app.out, key)
				}
				return nil
			},
		},
	)
	return cmd
}

func newConfigInitCommand(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration file",
		Args:        cobra.NoArgs,
		Annotations: skipSetup,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.targetConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := saveConfigFile(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

// normalizeKey accepts "server_listen" and "Server.Listen" for "server.listen".
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if strings.Contains(key, ".") {
		return key
	}
	for _, known := range config.GetAllKeys() {
		if strings.ReplaceAll(known, ".", "_") == key {
			return known
		}
	}
	return key
}

func (a *App) configShow() error {
	safe := a.cfg.Clone()
	if safe.Server.Token != "" {
		safe.Server.Token = maskSecret(safe.Server.Token)
	}
	if a.jsonOutput {
		return printJSON(a.out, safe)
	}
	return toml.NewEncoder(a.out).Encode(safe)
}

// ConfigPaths is the --json output of config path.
type ConfigPaths struct {
	Dir        string   `json:"dir"`
	Loaded     string   `json:"loaded,omitempty"`
	Candidates []string `json:"candidates"`
	Ledger     string   `json:"ledger"`
}

func (a *App) configPathInfo() error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	candidates, err := config.ConfigPaths()
	if err != nil {
		return err
	}
	loaded := a.configPath
	if loaded == "" {
		loaded, _ = config.FindConfigFile()
	}
	ledger, _ := config.Default().LedgerPath()

	info := ConfigPaths{Dir: dir, Loaded: loaded, Candidates: candidates, Ledger: ledger}
	if a.jsonOutput {
		return printJSON(a.out, info)
	}
	if loaded == "" {
		loaded = DimStyle.Render("(none, using defaults)")
	}
	fmt.Fprintln(a.out, RenderField("Directory", dir))
	fmt.Fprintln(a.out, RenderField("Loaded", loaded))
	fmt.Fprintln(a.out, RenderField("Search order", strings.Join(candidates, ", ")))
	fmt.Fprintln(a.out, RenderField("Ledger", ledger))
	return nil
}

// targetConfigPath is the file init and set write: --config, else the first
// existing file, else config.toml.
func (a *App) targetConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	path, err := config.FindConfigFile()
	if err != nil || path != "" {
		return path, err
	}
	return config.ConfigPathTOML()
}

// configSet edits the file directly so environment overrides are not
// written back.
func (a *App) configSet(key, value string) error {
	path, err := a.targetConfigPath()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = config.LoadJSON(cfg, path)
		case ".yaml", ".yml":
			err = config.LoadYAML(cfg, path)
		default:
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration value: %w", err)
	}
	if err := saveConfigFile(cfg, path); err != nil {
		return err
	}

	shown := value
	if key == "server.token" {
		shown = maskSecret(value)
	}
	fmt.Fprintf(a.out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
	return nil
}

func saveConfigFile(cfg *config.Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return config.SaveJSON(cfg, path)
	case ".yaml", ".yml":
		return config.SaveYAML(cfg, path)
	default:
		return config.SaveTOML(cfg, path)
	}
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
