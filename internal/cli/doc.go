// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the agentsig command line.
//
// # Commands
//
// Transports:
//   - serve: NDJSON events over stdin/stdout
//   - http: loopback HTTP API
//   - hook tool|model: one event per process
//
// Offline:
//   - rewrite: show how a shell command would be signed
//   - sign: sign a pull request body from stdin
//   - name: model identifier to display name
//   - try: interactive playground
//
// Inspection:
//   - status, history, config, version
//
// Every command accepts --json for machine-readable output. Logs go to
// stderr so stdout stays a clean protocol channel.
package cli
