// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the signature coordinator over HTTP for hosts that
// prefer a loopback service to a stdio child process.
//
// # Endpoints
//
//   - POST /v1/events        - Any event; the body carries "type"
//   - POST /v1/events/model  - Model update (type defaults to chat.params)
//   - POST /v1/events/tool   - Tool call (type defaults to tool.execute.before)
//   - GET  /v1/session       - Session ID, display name and signature
//   - GET  /v1/stats         - Coordinator, ledger and server counters
//   - GET  /health           - Liveness
//
// Every event endpoint answers with the same JSON document the stdio
// transport writes, so a host can switch transports without code changes.
//
// # Middleware
//
//   - Panic recovery
//   - Request logging through zap
//   - Bearer token authentication with constant-time comparison
//   - Per-client token-bucket rate limiting
//   - Request body size limit
//
// # Usage
//
//	srv := server.New(server.Config{Addr: "127.0.0.1:4141"}, handler, logger)
//	if err := srv.ListenAndServe(ctx); err != nil {
//		return err
//	}
package server
