package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/protocol/frame"
	"github.com/danmuck/bridgectl/internal/protocol/schema"
	"github.com/danmuck/bridgectl/internal/protocol/tlv"
)

// Frame encodes messages as a binary frame of TLV fields, base64 wrapped so
// the result is safe for text-only channels.
type Frame struct {
	Limits frame.Limits
}

func NewFrame() Frame {
	return Frame{Limits: frame.DefaultLimits()}
}

func (Frame) Name() string { return "frame" }

func (c Frame) Encode(msg protocol.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	msgType, flags := headerFor(msg)
	fields := []tlv.Field{tlv.String(schema.FieldID, msg.ID)}
	switch msg.Kind {
	case protocol.KindRequest:
		fields = append(fields, tlv.String(schema.FieldOperation, msg.Operation))
	case protocol.KindNotification:
		fields = append(fields, tlv.String(schema.FieldName, msg.Name))
	}
	if len(msg.Payload) > 0 {
		fields = append(fields, tlv.Bytes(schema.FieldPayload, msg.Payload))
	}
	if msg.Error != nil {
		fields = append(fields,
			tlv.String(schema.FieldErrorCode, msg.Error.Code),
			tlv.String(schema.FieldErrorMessage, msg.Error.Message),
		)
	}
	if msg.TimestampMS != 0 {
		fields = append(fields, tlv.U64(schema.FieldTimestampMS, msg.TimestampMS))
	}
	if err := schema.Validate(msgType, fields); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header:  frame.Header{MessageType: msgType, Flags: flags},
		Payload: tlv.EncodeFields(fields),
	}, c.limits())
	if err != nil {
		return "", fmt.Errorf("codec/frame: encode %s %s: %w", msg.Kind, msg.ID, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (c Frame) Decode(raw string) (protocol.Message, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	f, err := frame.Unmarshal(b, c.limits())
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}

	msg := protocol.Message{
		ID:        tlv.GetString(fields, schema.FieldID),
		Kind:      kindFor(f.Header.MessageType),
		Operation: tlv.GetString(fields, schema.FieldOperation),
		Name:      tlv.GetString(fields, schema.FieldName),
	}
	if p, ok := tlv.GetField(fields, schema.FieldPayload); ok {
		msg.Payload = p.Value
	}
	if code, ok := tlv.GetField(fields, schema.FieldErrorCode); ok {
		msg.Error = &protocol.ErrorInfo{
			Code:    string(code.Value),
			Message: tlv.GetString(fields, schema.FieldErrorMessage),
		}
	}
	if ts, ok := tlv.GetField(fields, schema.FieldTimestampMS); ok {
		v, err := tlv.U64FromBytes(ts.Value)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
		}
		msg.TimestampMS = v
	}
	return msg.ValidateInbound()
}

func (c Frame) limits() frame.Limits {
	if c.Limits.MaxPayloadBytes == 0 {
		return frame.DefaultLimits()
	}
	return c.Limits
}

func headerFor(msg protocol.Message) (uint32, uint32) {
	switch msg.Kind {
	case protocol.KindRequest:
		return schema.MsgRequest, 0
	case protocol.KindNotification:
		return schema.MsgNotification, 0
	default:
		flags := frame.FlagIsResponse
		if msg.Error != nil {
			flags |= frame.FlagIsError
		}
		return schema.MsgResponse, flags
	}
}

func kindFor(msgType uint32) protocol.Kind {
	switch msgType {
	case schema.MsgRequest:
		return protocol.KindRequest
	case schema.MsgResponse:
		return protocol.KindResponse
	case schema.MsgNotification:
		return protocol.KindNotification
	default:
		return ""
	}
}
