// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model turns raw model identifiers reported by the host into the
// human-readable display names embedded in signatures.
//
// # Key Types
//
//   - Identity: a model reference, either an opaque string or a
//     (provider, model) pair, as delivered by chat events
//   - NameEntry: one row of the display-name table
//
// # Resolution
//
// FormatIdentity normalizes the identifier (date and hash suffixes removed,
// "@" replaced by "/"), then looks it up in Names: exact match first, then the
// first entry, in declaration order, whose key is a case-insensitive substring
// of the identifier. Unknown identifiers are returned with the first letter
// capitalized.
//
// # Usage
//
//	name := model.FormatIdentity(&model.Identity{ModelID: "claude-3-5-sonnet-20241022"})
//	// name == "Claude 3.5 Sonnet"
package model
