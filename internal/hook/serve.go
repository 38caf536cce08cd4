// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package hook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxEventBytes caps a single event line.
const MaxEventBytes = 8 << 20

// Serve reads newline-delimited events from r and writes one response line
// per event to w, in order. Blank lines are skipped. It returns nil when r
// reaches EOF or ctx is done.
//
// Reading happens on a separate goroutine that exits when r does; callers
// that cancel ctx should also close r.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		br := bufio.NewReaderSize(r, 64<<10)
		for {
			line, err := readLine(br)
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("read events: %w", err)
				default:
					return nil
				}
			}
			var resp Response
			if len(line) > MaxEventBytes {
				resp = h.fail(Response{Model: h.coord.DisplayName()},
					&ProtocolError{Reason: fmt.Sprintf("event exceeds %d bytes", MaxEventBytes)})
			} else {
				resp = h.Handle(line)
			}
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

// readLine returns the next non-blank line without its terminator. Lines
// longer than MaxEventBytes are consumed in full but truncated to
// MaxEventBytes+1 bytes so the caller can reject them.
func readLine(br *bufio.Reader) ([]byte, error) {
	for {
		var line []byte
		for {
			chunk, err := br.ReadSlice('\n')
			if len(line) <= MaxEventBytes {
				line = append(line, chunk...)
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			trimmed := bytes.TrimSpace(line)
			if err != nil || len(trimmed) > 0 {
				return trimmed, err
			}
			break
		}
	}
}

// HandleOnce reads a single event from r (up to MaxEventBytes) and writes
// its response to w.
func (h *Handler) HandleOnce(r io.Reader, w io.Writer, fallbackType string) (Response, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxEventBytes+1))
	if err != nil {
		return Response{}, fmt.Errorf("read event: %w", err)
	}

	var resp Response
	if len(data) > MaxEventBytes {
		resp = h.fail(Response{Model: h.coord.DisplayName()},
			&ProtocolError{Reason: fmt.Sprintf("event exceeds %d bytes", MaxEventBytes)})
	} else {
		resp = h.HandleTyped(bytes.TrimSpace(data), fallbackType)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return resp, fmt.Errorf("write response: %w", err)
	}
	return resp, nil
}
