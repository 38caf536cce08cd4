// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists applied rewrites in a sqlite ledger.
//
// # Key Types
//
//   - Ledger: sqlite-backed table of tool call outcomes
//   - Entry: one recorded outcome with before/after previews
//   - Writer: bounded async queue in front of a Ledger
//
// # Usage
//
//	ledger, err := storage.Open(path, 10000)
//	if err != nil {
//	    return err
//	}
//	defer ledger.Close()
//
//	w := storage.NewWriter(ledger, 256, logger)
//	go w.Run(ctx)
//	w.Enqueue(storage.FromOutcome(coord.SessionID(), outcome))
//
// Tool call handling never waits on the ledger: a full queue drops the
// entry and counts it.
package storage
