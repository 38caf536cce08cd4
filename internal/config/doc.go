// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for agentsig.
//
// TOML, YAML and JSON files are supported, with defaults, environment
// variable overrides and validation.
//
// # Key Types
//
//   - Config: main configuration structure
//   - SignatureConfig: glyph, host name and host URL used in signatures
//   - ToolsConfig: extra targeted tools and command family switches
//   - ServerConfig: HTTP transport address, token and rate limit
//   - LedgerConfig: sqlite rewrite ledger
//   - LoggingConfig: zap level, encoding and output file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AGENTSIG_*)
//   - ~/.agentsig/config.toml
//   - ~/.agentsig/config.yaml
//   - ~/.agentsig/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	codec := cfg.Codec()
//
// Watch a file and hot-reload:
//
//	go config.Watch(ctx, path, 0, func(cfg *config.Config, err error) { ... })
package config
