// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is a model reference as delivered by the host. It is either an
// opaque string (Raw) or a provider/model pair; Pair reports which.
type Identity struct {
	// Raw is set when the host sent a bare string.
	Raw string

	// ProviderID and ModelID are set when the host sent a structured pair.
	ProviderID string
	ModelID    string

	// Pair is true when the identity came from the structured form.
	Pair bool
}

// StringIdentity builds an Identity from a bare identifier.
func StringIdentity(raw string) *Identity {
	return &Identity{Raw: raw}
}

// PairIdentity builds an Identity from a provider/model pair.
func PairIdentity(providerID, modelID string) *Identity {
	return &Identity{ProviderID: providerID, ModelID: modelID, Pair: true}
}

// ID returns the identifier that names the model: ModelID for pairs,
// Raw otherwise.
func (id *Identity) ID() string {
	if id == nil {
		return ""
	}
	if id.Pair {
		return id.ModelID
	}
	return id.Raw
}

// String renders the identity for logs.
func (id *Identity) String() string {
	if id == nil {
		return "<none>"
	}
	if id.Pair {
		if id.ProviderID == "" {
			return id.ModelID
		}
		return id.ProviderID + "/" + id.ModelID
	}
	return id.Raw
}

// identityObject is the structured JSON form. Both camelCase (host native)
// and snake_case spellings are accepted.
type identityObject struct {
	ProviderID      string `json:"providerID"`
	ModelID         string `json:"modelID"`
	ProviderIDSnake string `json:"provider_id"`
	ModelIDSnake    string `json:"model_id"`
	ID              string `json:"id"`
}

// UnmarshalJSON accepts null, a bare string, or a provider/model object.
func (id *Identity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = Identity{}
		return nil
	}

	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode model identity string: %w", err)
		}
		*id = Identity{Raw: raw}
		return nil
	}

	var obj identityObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode model identity object: %w", err)
	}

	provider := firstNonEmpty(obj.ProviderID, obj.ProviderIDSnake)
	modelID := firstNonEmpty(obj.ModelID, obj.ModelIDSnake, obj.ID)
	*id = Identity{ProviderID: provider, ModelID: modelID, Pair: true}
	return nil
}

// MarshalJSON writes the same shape the identity was decoded from.
func (id Identity) MarshalJSON() ([]byte, error) {
	if !id.Pair {
		return json.Marshal(id.Raw)
	}
	return json.Marshal(map[string]string{
		"providerID": id.ProviderID,
		"modelID":    id.ModelID,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
