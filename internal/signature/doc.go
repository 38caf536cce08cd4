// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package signature renders and detects the provenance signature that agentsig
// appends to pull requests, issues and commit messages.
//
// # Format
//
// A rendered signature has the canonical form:
//
//	🤖 Generated with [OpenCode](https://opencode.ai) (Claude 3.5 Sonnet)
//
// Detection only looks for the marker phrase that precedes the display name
// ("Generated with [OpenCode]"), so a signature rendered for one model is
// still recognised after the active model changes.
//
// # Usage
//
//	sig := signature.Render("Claude 3.5 Sonnet")
//	if !signature.HasSignature(body) {
//	    body += "\n\n" + sig
//	}
package signature
