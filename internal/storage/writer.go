// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// pruneEvery is how many writes pass between Prune calls.
const pruneEvery = 100

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Writer records entries on a background goroutine so callers never wait on
// sqlite.
type Writer struct {
	ledger *Ledger
	logger *zap.Logger

	mu     sync.RWMutex
	ch     chan Entry
	closed bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewWriter creates a writer with a queue of queueSize entries.
func NewWriter(ledger *Ledger, queueSize int, logger *zap.Logger) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		ledger: ledger,
		logger: logger.Named("ledger"),
		ch:     make(chan Entry, queueSize),
	}
}

// Enqueue queues an entry without blocking. It returns false if the queue is
// full or the writer is closed; the entry is then dropped.
func (w *Writer) Enqueue(e Entry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.ch <- e:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Close stops accepting entries. Run drains what is queued, then returns.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

// Run writes queued entries until Close is called or ctx is done, then
// flushes the queue. It returns nil; write failures are logged and counted.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.Close()
			for e := range w.ch {
				w.write(e)
			}
			return nil
		case e, ok := <-w.ch:
			if !ok {
				return nil
			}
			w.write(e)
		}
	}
}

func (w *Writer) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.ledger.Record(ctx, e); err != nil {
		w.failed.Add(1)
		w.logger.Warn("ledger write failed", zap.String("id", e.ID), zap.Error(err))
		return
	}

	if n := w.written.Add(1); n%pruneEvery == 0 {
		if removed, err := w.ledger.Prune(ctx); err != nil {
			w.logger.Warn("ledger prune failed", zap.Error(err))
		} else if removed > 0 {
			w.logger.Debug("ledger pruned", zap.Int64("removed", removed))
		}
	}
}

// WriterStats counts what the writer has done.
type WriterStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Queued  int   `json:"queued"`
}

// Stats returns the writer counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
		Queued:  len(w.ch),
	}
}
