// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hook speaks the host's event protocol: one JSON object per line
// in, one JSON response per line out.
//
// Model events update the session's display name; tool events come back
// with their (possibly signed) arguments. Malformed events are answered
// with the original arguments and an error string so the host can carry on.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types.
const (
	EventChatParams  = "chat.params"
	EventChatMessage = "chat.message"
	EventModelUpdate = "model.update"
	EventToolBefore  = "tool.execute.before"
)

// IsModelEvent reports whether typ carries a model identity.
func IsModelEvent(typ string) bool {
	switch typ {
	case EventChatParams, EventChatMessage, EventModelUpdate:
		return true
	}
	return false
}

// ErrUnknownEvent is wrapped by responses to unrecognised event types.
var ErrUnknownEvent = errors.New("unknown event type")

// Response is written for every event.
type Response struct {
	// ID echoes the request id verbatim, whatever its JSON type.
	ID json.RawMessage `json:"id,omitempty"`

	Type string `json:"type,omitempty"`

	// Args are the original argument bytes unless the call was signed.
	Args json.RawMessage `json:"args,omitempty"`

	Mutated bool   `json:"mutated"`
	Action  string `json:"action,omitempty"`
	Model   string `json:"model"`
	Error   string `json:"error,omitempty"`
}

// ProtocolError describes an event the handler could not interpret.
type ProtocolError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
