// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools knows which host tools carry user-visible text and how to
// sign what they send.
//
// # Key Types
//
//   - Tool: a targeted tool identifier and the kind of payload it carries
//   - Registry: lookup of targeted tools by exact identifier
//   - Rewriter: injects a signature into a shell command line
//
// # Command Rewriting
//
// Shell commands are split into segments with a quote-aware scanner
// (FindCommandEndIndex). Two command families are recognised at the command
// word of a segment, after any subshell paren or NAME=value assignments:
//
//   - git commit with a message flag: a second -m paragraph is appended
//   - gh pr|issue create|comment|review: the --body value is extended, or a
//     --body flag is appended; commands using --body-file are left alone
//
// Anything else is returned unchanged. A command that already carries a
// signature is never touched again.
package tools
