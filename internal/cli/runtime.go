// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - Wiring from config to coordinator, ledger and transports.

package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/agentsig/internal/config"
	"github.com/jeranaias/agentsig/internal/hook"
	"github.com/jeranaias/agentsig/internal/logging"
	"github.com/jeranaias/agentsig/internal/session"
	"github.com/jeranaias/agentsig/internal/storage"
	"github.com/jeranaias/agentsig/internal/tools"
)

// SessionConfig converts a loaded config into coordinator settings.
func SessionConfig(cfg *config.Config, logger *zap.Logger) session.Config {
	sc := session.DefaultConfig()
	sc.Codec = cfg.Codec()
	sc.Registry = tools.NewRegistryWithExtras(cfg.Tools.Structured, cfg.Tools.Shell)
	sc.GitCommit = cfg.Tools.GitCommit
	sc.GitHub = cfg.Tools.GitHub
	sc.DefaultModel = cfg.DefaultModel
	sc.Logger = logger
	return sc
}

// appRuntime is the long-lived state behind serve, http and hook.
type appRuntime struct {
	app     *App
	coord   *session.Coordinator
	handler *hook.Handler
	ledger  *storage.Ledger
	writer  *storage.Writer
}

// newRuntime builds the coordinator and, when enabled, opens the ledger.
// A ledger that cannot be opened is logged and skipped; signing still works.
func (a *App) newRuntime() *appRuntime {
	rt := &appRuntime{app: a}
	rt.coord = session.New(SessionConfig(a.cfg, a.logger))

	if a.cfg.Ledger.Enabled {
		if err := rt.openLedger(); err != nil {
			a.logger.Warn("ledger disabled", zap.Error(err))
		}
	}

	rt.handler = hook.NewHandler(rt.coord,
		hook.WithLogger(a.logger.Named("hook")),
		hook.WithObserver(rt.observe))
	return rt
}

func (rt *appRuntime) openLedger() error {
	path, err := rt.app.cfg.LedgerPath()
	if err != nil {
		return err
	}
	ledger, err := storage.Open(path, rt.app.cfg.Ledger.MaxEntries)
	if err != nil {
		return err
	}
	rt.ledger = ledger
	rt.writer = storage.NewWriter(ledger, rt.app.cfg.Ledger.QueueSize, rt.app.logger.Named("ledger"))
	return nil
}

// observe queues targeted outcomes for the ledger.
func (rt *appRuntime) observe(o session.Outcome) {
	if rt.writer == nil || o.Kind == tools.KindNone.String() {
		return
	}
	rt.writer.Enqueue(storage.FromOutcome(rt.coord.SessionID(), o))
}

// recordNow writes an outcome synchronously; one-shot commands exit before
// an async writer would drain.
func (rt *appRuntime) recordNow(ctx context.Context, o session.Outcome) {
	if rt.ledger == nil || o.Kind == tools.KindNone.String() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.ledger.Record(ctx, storage.FromOutcome(rt.coord.SessionID(), o)); err != nil {
		rt.app.logger.Warn("ledger write failed", zap.Error(err))
	}
}

func (rt *appRuntime) close() {
	if rt.writer != nil {
		rt.writer.Close()
	}
	if rt.ledger != nil {
		if err := rt.ledger.Close(); err != nil {
			rt.app.logger.Warn("ledger close failed", zap.Error(err))
		}
	}
}

// run starts the ledger writer and config watcher next to serve, and waits
// for all of them. serve's return ends the group.
func (rt *appRuntime) run(ctx context.Context, serve func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if rt.writer != nil {
		g.Go(func() error {
			return rt.writer.Run(gctx)
		})
	}

	if path := rt.app.watchPath(); path != "" {
		g.Go(func() error {
			err := config.Watch(gctx, path, config.DefaultDebounce, rt.onReload)
			if err != nil {
				rt.app.logger.Warn("config watch unavailable", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		if rt.writer != nil {
			defer rt.writer.Close()
		}
		return serve(gctx)
	})

	return g.Wait()
}

// onReload applies a changed config file to the running session.
func (rt *appRuntime) onReload(cfg *config.Config, err error) {
	logger := rt.app.logger
	if err != nil {
		logger.Warn("config reload failed; keeping previous settings", zap.Error(err))
		return
	}
	if rt.app.model != "" {
		cfg.DefaultModel = rt.app.model
	}

	config.SetGlobal(cfg)
	rt.app.cfg = cfg
	rt.coord.Reconfigure(SessionConfig(cfg, logger))
	if !rt.app.verbose {
		logging.SetLevel(rt.app.level, cfg.Logging.Level)
	}
	logger.Info("config reloaded",
		zap.String("host", cfg.Signature.HostName),
		zap.Int("tools", rt.coord.Registry().Len()))
}

// describe returns a short startup line for logs.
func (rt *appRuntime) describe() []zap.Field {
	fields := []zap.Field{
		zap.String("session", rt.coord.SessionID()),
		zap.String("model", rt.coord.DisplayName()),
		zap.Int("tools", rt.coord.Registry().Len()),
	}
	if rt.ledger != nil {
		fields = append(fields, zap.String("ledger", rt.ledger.Path()))
	}
	return fields
}

func errorf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
