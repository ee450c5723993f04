package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingType = errors.New("message has no type")

// Envelope is one frame of the primary connection. Payload holds the raw JSON
// object of the frame; it may include the "type" key.
type Envelope struct {
	Type    MessageType
	Payload json.RawMessage
}

// NewEnvelope builds an envelope from a payload that marshals to a JSON
// object. A nil payload produces a frame carrying only the type.
func NewEnvelope(messageType MessageType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: messageType}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("payload of %s is not a JSON object", messageType)
	}

	return Envelope{Type: messageType, Payload: raw}, nil
}

// ParseEnvelope decodes a text frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var header struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if header.Type == nil || *header.Type == "" {
		return Envelope{}, ErrMissingType
	}

	return Envelope{Type: MessageType(*header.Type), Payload: append(json.RawMessage(nil), data...)}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			return nil, fmt.Errorf("payload of %s is not a JSON object: %w", e.Type, err)
		}
	}

	typ, err := json.Marshal(string(e.Type))
	if err != nil {
		return nil, err
	}
	fields["type"] = typ

	return json.Marshal(fields)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	parsed, err := ParseEnvelope(data)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
