package schema

import (
	"fmt"

	"github.com/danmuck/bridgectl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in the frame header.
const (
	MsgRequest      uint32 = 1
	MsgResponse     uint32 = 2
	MsgNotification uint32 = 3
)

// Field IDs from tlv contract.
const (
	FieldID           uint16 = 1
	FieldOperation    uint16 = 2
	FieldName         uint16 = 3
	FieldPayload      uint16 = 4
	FieldErrorCode    uint16 = 5
	FieldErrorMessage uint16 = 6
	FieldTimestampMS  uint16 = 7
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgRequest: {
		{FieldID, tlv.TypeString},
		{FieldOperation, tlv.TypeString},
	},
	MsgResponse: {
		{FieldID, tlv.TypeString},
	},
	MsgNotification: {
		{FieldID, tlv.TypeString},
		{FieldName, tlv.TypeString},
	},
}

// Optional fields still have a fixed type when present.
var optional = map[uint16]uint8{
	FieldOperation:    tlv.TypeString,
	FieldName:         tlv.TypeString,
	FieldPayload:      tlv.TypeBytes,
	FieldErrorCode:    tlv.TypeString,
	FieldErrorMessage: tlv.TypeString,
	FieldTimestampMS:  tlv.TypeU64,
}

// Validate enforces required fields and field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, f := range fields {
		want, known := optional[f.ID]
		if known && f.Type != want {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", f.ID).
				Uint8("got", f.Type).
				Uint8("want", want).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: f.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
