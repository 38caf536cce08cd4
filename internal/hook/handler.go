// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package hook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/session"
)

// Observer is told about every tool call outcome, e.g. to feed the ledger.
// It runs on the handling goroutine and must not block.
type Observer func(session.Outcome)

// Handler turns raw events into coordinator calls.
type Handler struct {
	coord    *session.Coordinator
	logger   *zap.Logger
	observer Observer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for protocol errors.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(fn Observer) Option {
	return func(h *Handler) {
		h.observer = fn
	}
}

// NewHandler creates a handler for coord.
func NewHandler(coord *session.Coordinator, opts ...Option) *Handler {
	h := &Handler{coord: coord, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Coordinator returns the coordinator events are dispatched to.
func (h *Handler) Coordinator() *session.Coordinator {
	return h.coord
}

// Handle interprets one event. It never fails: problems are reported in
// Response.Error with the original args echoed back.
func (h *Handler) Handle(raw []byte) Response {
	return h.handle(raw, "")
}

// HandleTyped is Handle with a type to assume when the event has none.
// One-shot hook invocations know their event type from the command line.
func (h *Handler) HandleTyped(raw []byte, fallbackType string) Response {
	return h.handle(raw, fallbackType)
}

func (h *Handler) handle(raw []byte, fallbackType string) Response {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return h.fail(Response{Model: h.coord.DisplayName()}, &ProtocolError{Reason: "event is not a JSON object", Err: err})
	}

	resp := Response{
		ID:    fields["id"],
		Args:  fields["args"],
		Model: h.coord.DisplayName(),
	}

	typ := fallbackType
	if rawType, ok := fields["type"]; ok && !isNull(rawType) {
		if err := json.Unmarshal(rawType, &typ); err != nil {
			return h.fail(resp, &ProtocolError{Field: "type", Reason: "must be a string", Err: err})
		}
	}
	resp.Type = typ

	switch {
	case IsModelEvent(typ):
		return h.handleModel(resp, fields)
	case typ == EventToolBefore:
		return h.handleTool(resp, fields)
	case typ == "":
		return h.fail(resp, &ProtocolError{Field: "type", Reason: "missing"})
	default:
		return h.fail(resp, &ProtocolError{Field: "type", Reason: fmt.Sprintf("%q", typ), Err: ErrUnknownEvent})
	}
}

func (h *Handler) handleModel(resp Response, fields map[string]json.RawMessage) Response {
	rawModel, ok := fields["model"]
	if !ok {
		return h.fail(resp, &ProtocolError{Field: "model", Reason: "missing"})
	}

	var id *model.Identity
	if !isNull(rawModel) {
		id = new(model.Identity)
		if err := json.Unmarshal(rawModel, id); err != nil {
			return h.fail(resp, &ProtocolError{Field: "model", Reason: "invalid identity", Err: err})
		}
	}
	resp.Model = h.coord.HandleModelUpdate(id)
	return resp
}

func (h *Handler) handleTool(resp Response, fields map[string]json.RawMessage) Response {
	var tool string
	if err := json.Unmarshal(fields["tool"], &tool); err != nil || tool == "" {
		return h.fail(resp, &ProtocolError{Field: "tool", Reason: "must be a non-empty string", Err: err})
	}

	args := map[string]any{}
	if rawArgs, ok := fields["args"]; ok && !isNull(rawArgs) {
		dec := json.NewDecoder(bytes.NewReader(rawArgs))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return h.fail(resp, &ProtocolError{Field: "args", Reason: "must be an object", Err: err})
		}
	}

	out := h.coord.HandleToolCall(tool, args)
	if h.observer != nil {
		h.observer(out)
	}

	resp.Action = string(out.Action)
	resp.Mutated = out.Mutated
	resp.Model = out.Model
	resp.Error = out.ErrorMessage()

	if out.Mutated {
		encoded, err := encodeArgs(args)
		if err != nil {
			resp.Mutated = false
			return h.fail(resp, &ProtocolError{Field: "args", Reason: "could not re-encode", Err: err})
		}
		resp.Args = encoded
	}
	return resp
}

func (h *Handler) fail(resp Response, err error) Response {
	h.logger.Warn("malformed event", zap.String("type", resp.Type), zap.Error(err))
	resp.Error = err.Error()
	return resp
}

// encodeArgs marshals args without HTML escaping so "&&" stays readable.
func encodeArgs(args map[string]any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
