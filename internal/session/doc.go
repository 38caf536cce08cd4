// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the per-process signing state and reacts to host
// events.
//
// A Coordinator remembers the display name of the active model and uses it
// to sign outgoing tool calls: structured issue tracker calls get the
// signature appended to their body, shell calls go through the command
// rewriter.
//
// # Usage
//
//	coord := session.New(session.DefaultConfig())
//	coord.HandleModelUpdate(model.PairIdentity("moonshot", "kimi-k2"))
//
//	args := map[string]any{"title": "Fix", "body": "Details"}
//	out := coord.HandleToolCall("github_create_pull_request", args)
//	// args["body"] now ends with the signature; out.Mutated is true
//
// All methods are safe for concurrent use.
package session
