// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by agentsig packages.
//
// # Key Functions
//
// String Utilities:
//   - Preview: one-line, width-limited rendering of a command or body
//   - TruncateWidth, StringWidth, PadRight: display-width aware helpers
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//
// Formatting:
//   - FormatDuration: compact uptime strings ("4m 12s")
//   - Percent: integer ratio as a percentage string
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	// Log a rewritten command without flooding the line
//	logger.Info("rewrote", zap.String("after", util.Preview(cmd, 80)))
//
//	// Write config files atomically
//	err := util.AtomicWriteFile(path, data, 0600)
package util
