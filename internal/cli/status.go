// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - status and history commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentsig/internal/config"
	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/storage"
	"github.com/jeranaias/agentsig/internal/util"
)

// openLedgerForQuery opens the configured ledger for queries. It returns
// (nil, nil) when the ledger is disabled or has never been written.
func (a *App) openLedgerForQuery() (*storage.Ledger, error) {
	if !a.cfg.Ledger.Enabled {
		return nil, nil
	}
	path, err := a.cfg.LedgerPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return storage.Open(path, a.cfg.Ledger.MaxEntries)
}

// =============================================================================
// STATUS
// =============================================================================

// StatusInfo is the --json output of status.
type StatusInfo struct {
	ConfigFile  string         `json:"config_file,omitempty"`
	Host        string         `json:"host"`
	HostURL     string         `json:"host_url"`
	Model       string         `json:"model"`
	Signature   string         `json:"signature"`
	Tools       []string       `json:"tools"`
	GitCommit   bool           `json:"git_commit"`
	GitHub      bool           `json:"gh"`
	Listen      string         `json:"listen"`
	Auth        bool           `json:"auth"`
	LedgerPath  string         `json:"ledger_path,omitempty"`
	Ledger      *storage.Stats `json:"ledger,omitempty"`
	HookModel   string         `json:"hook_model,omitempty"`
	HookUpdated *time.Time     `json:"hook_updated,omitempty"`
}

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active configuration and ledger totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := app.collectStatus(cmd.Context())
			if err != nil {
				return err
			}
			if app.jsonOutput {
				return printJSON(app.out, info)
			}
			app.printStatus(info)
			return nil
		},
	}
}

func (a *App) collectStatus(ctx context.Context) (StatusInfo, error) {
	coord := a.offlineCoordinator()

	info := StatusInfo{
		ConfigFile: a.configPath,
		Host:       a.cfg.Signature.HostName,
		HostURL:    a.cfg.Signature.HostURL,
		Model:      coord.DisplayName(),
		Signature:  coord.Signature(),
		GitCommit:  a.cfg.Tools.GitCommit,
		GitHub:     a.cfg.Tools.GitHub,
		Listen:     a.cfg.Server.Listen,
		Auth:       a.cfg.Server.Token != "",
	}
	if info.ConfigFile == "" {
		info.ConfigFile, _ = config.FindConfigFile()
	}
	for _, t := range coord.Registry().All() {
		info.Tools = append(info.Tools, t.Name)
	}

	if st, err := loadHookState(); err == nil && st.Model != nil {
		info.HookModel = model.FormatIdentity(st.Model)
		updated := st.UpdatedAt
		info.HookUpdated = &updated
	}

	ledger, err := a.openLedgerForQuery()
	if err != nil {
		return info, err
	}
	if ledger != nil {
		defer ledger.Close()
		info.LedgerPath = ledger.Path()
		stats, err := ledger.Stats(ctx)
		if err != nil {
			return info, err
		}
		info.Ledger = &stats
	}
	return info, nil
}

func (a *App) printStatus(info StatusInfo) {
	w := a.out
	fmt.Fprintln(w, TitleStyle.Render("agentsig status"))

	configFile := info.ConfigFile
	if configFile == "" {
		configFile = "(defaults)"
	}
	fmt.Fprintln(w, RenderField("Config", configFile))
	fmt.Fprintln(w, RenderField("Host", info.Host+" "+DimStyle.Render(info.HostURL)))
	fmt.Fprintln(w, RenderField("Default model", info.Model))
	if info.HookModel != "" {
		fmt.Fprintln(w, RenderField("Hook model", info.HookModel+" "+
			DimStyle.Render(util.FormatDuration(time.Since(*info.HookUpdated))+" ago")))
	}
	fmt.Fprintln(w, RenderField("Signature", HighlightSignature(info.Signature, info.Signature)))

	fmt.Fprintln(w, SectionStyle.Render("Targets"))
	fmt.Fprintln(w, RenderField("Tools", strconv.Itoa(len(info.Tools))))
	fmt.Fprintln(w, RenderField("git commit", onOff(info.GitCommit)))
	fmt.Fprintln(w, RenderField("gh pr/issue", onOff(info.GitHub)))

	fmt.Fprintln(w, SectionStyle.Render("HTTP"))
	fmt.Fprintln(w, RenderField("Listen", info.Listen))
	fmt.Fprintln(w, RenderField("Auth", onOff(info.Auth)))

	fmt.Fprintln(w, SectionStyle.Render("Ledger"))
	if info.Ledger == nil {
		fmt.Fprintln(w, DimStyle.Render("  no ledger"))
		return
	}
	fmt.Fprintln(w, RenderField("Path", info.LedgerPath))
	fmt.Fprintln(w, RenderField("Entries", strconv.Itoa(info.Ledger.Total)))
	fmt.Fprintln(w, RenderField("Signed", fmt.Sprintf("%d (%s)",
		info.Ledger.Mutated, util.Percent(info.Ledger.Mutated, info.Ledger.Total))))
	fmt.Fprintln(w, RenderField("Sessions", strconv.Itoa(info.Ledger.Sessions)))
}

func onOff(b bool) string {
	if b {
		return SuccessStyle.Render("on")
	}
	return DimStyle.Render("off")
}

// =============================================================================
// HISTORY
// =============================================================================

func newHistoryCommand(app *App) *cobra.Command {
	var q storage.Query

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent signing decisions from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := app.openLedgerForQuery()
			if err != nil {
				return err
			}
			if ledger == nil {
				if app.jsonOutput {
					return printJSON(app.out, []storage.Entry{})
				}
				fmt.Fprintln(app.out, DimStyle.Render("No ledger yet."))
				return nil
			}
			defer ledger.Close()

			entries, err := ledger.Recent(cmd.Context(), q)
			if err != nil {
				return err
			}
			if app.jsonOutput {
				return printJSON(app.out, entries)
			}
			app.printHistory(entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVar(&q.SessionID, "session", "", "only this session")
	cmd.Flags().BoolVar(&q.MutatedOnly, "signed", false, "only calls that were signed")
	return cmd
}

func (a *App) printHistory(entries []storage.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(a.out, DimStyle.Render("No entries."))
		return
	}

	previewWidth := GetTerminalWidth() - 58
	if previewWidth < 20 {
		previewWidth = 20
	}
	for _, e := range entries {
		text := e.After
		if text == "" {
			text = e.Before
		}
		fmt.Fprintf(a.out, "%s  %s  %s  %s  %s\n",
			DimStyle.Render(e.CreatedAt.Local().Format("01-02 15:04:05")),
			util.PadRight(util.TruncateWidth(e.Tool, 18), 18),
			RenderAction(util.PadRight(e.Action, 14), e.Mutated),
			util.PadRight(util.TruncateWidth(e.Model, 16), 16),
			util.Preview(text, previewWidth))
	}
}
