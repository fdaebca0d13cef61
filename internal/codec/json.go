package codec

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/bridgectl/internal/protocol"
)

// JSON encodes messages as one JSON object per message.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(msg protocol.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("codec/json: encode %s %s: %w", msg.Kind, msg.ID, err)
	}
	return string(b), nil
}

func (JSON) Decode(raw string) (protocol.Message, error) {
	var msg protocol.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	return msg.ValidateInbound()
}
