package autogain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType names a control command.
type MessageType string

// Control commands accepted by ControlPort.Post.
const (
	// MessageSetOffset sets the target loudness ratio to Value.
	MessageSetOffset MessageType = "setOffset"
	// MessageResetGain requests an immediate gain reset.
	MessageResetGain MessageType = "resetGain"
)

var (
	// ErrUnknownMessage is returned for unrecognised message types.
	ErrUnknownMessage = errors.New("autogain: unknown message type")
	// ErrMalformedMessage is returned when a message cannot be decoded.
	ErrMalformedMessage = errors.New("autogain: malformed message")
)

// Message is a control command as sent by a host bridge, for example
// {"type": "setOffset", "value": 0.8}.
type Message struct {
	Type  MessageType `json:"type"`
	Value float64     `json:"value,omitempty"`
}

// SetOffset returns a message setting the target ratio.
func SetOffset(ratio float64) Message {
	return Message{Type: MessageSetOffset, Value: ratio}
}

// ResetGain returns a reset message.
func ResetGain() Message {
	return Message{Type: MessageResetGain}
}

// DecodeMessage converts a generic key/value message, as produced by a
// JavaScript bridge, to a Message.
func DecodeMessage(raw map[string]any) (Message, error) {
	typ, ok := raw["type"].(string)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	msg := Message{Type: MessageType(typ)}

	switch msg.Type {
	case MessageSetOffset:
		v, err := numberField(raw, "value")
		if err != nil {
			return Message{}, err
		}
		msg.Value = v
	case MessageResetGain:
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, typ)
	}

	return msg, nil
}

// ParseMessage decodes a JSON control message.
func ParseMessage(data []byte) (Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return DecodeMessage(raw)
}

func numberField(raw map[string]any, key string) (float64, error) {
	switch v := raw[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, key, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedMessage, key)
	default:
		return 0, fmt.Errorf("%w: %s is %T, want number", ErrMalformedMessage, key, v)
	}
}
