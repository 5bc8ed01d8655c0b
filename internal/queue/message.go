package queue

import (
	"encoding/json"
	"fmt"
)

const (
	TypePush         = "push"
	TypeCourierSweep = "courier_sweep"
)

// Message is one entry on the push stream. Payload is opaque JSON whose shape
// depends on Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload as the message body. A nil payload is allowed.
func NewMessage(typ string, payload any) (Message, error) {
	msg := Message{Type: typ}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	msg.Payload = raw
	return msg, nil
}

func (m Message) values() map[string]any {
	values := map[string]any{"type": m.Type}
	if len(m.Payload) > 0 {
		values["payload"] = string(m.Payload)
	}
	return values
}

// Decode rebuilds a Message from the flat field map of a stream entry.
func Decode(values map[string]any) (Message, error) {
	typ, _ := values["type"].(string)
	if typ == "" {
		return Message{}, fmt.Errorf("stream entry has no type")
	}
	msg := Message{Type: typ}
	if raw, ok := values["payload"].(string); ok && raw != "" {
		if !json.Valid([]byte(raw)) {
			return Message{}, fmt.Errorf("stream entry %s has invalid payload", typ)
		}
		msg.Payload = json.RawMessage(raw)
	}
	return msg, nil
}
