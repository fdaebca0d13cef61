package protocol

import "errors"

var (
	ErrInvalidMessage = errors.New("protocol: invalid message")
	ErrUnknownKind    = errors.New("protocol: unknown message kind")
	ErrMissingID      = errors.New("protocol: missing id")
	ErrMissingTarget  = errors.New("protocol: missing operation or name")
	ErrAmbiguousReply = errors.New("protocol: response must carry exactly one of payload or error")
)
