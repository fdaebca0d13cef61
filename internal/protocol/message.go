package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the three bridge message shapes.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNotification Kind = "notification"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRequest, KindResponse, KindNotification:
		return true
	default:
		return false
	}
}

// ErrorInfo is the structured error carried by a failed response.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Message is one bridge wire message.
//
// Request uses Operation, Notification uses Name, Response uses exactly one
// of Payload or Error. ID is present on every kind.
type Message struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Operation   string          `json:"operation,omitempty"`
	Name        string          `json:"name,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       *ErrorInfo      `json:"error,omitempty"`
	TimestampMS uint64          `json:"timestamp,omitempty"`
}

// NewRequest builds a request message.
func NewRequest(id, operation string, payload json.RawMessage) Message {
	return Message{ID: id, Kind: KindRequest, Operation: operation, Payload: payload}
}

// NewNotification builds a notification message.
func NewNotification(id, name string, payload json.RawMessage) Message {
	return Message{ID: id, Kind: KindNotification, Name: name, Payload: payload}
}

// NewResult builds a successful response. A nil payload is sent as JSON null
// so the response still carries exactly one of payload/error.
func NewResult(id string, payload json.RawMessage) Message {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Message{ID: id, Kind: KindResponse, Payload: payload}
}

// NewFailure builds an error response.
func NewFailure(id, code, message string) Message {
	return Message{ID: id, Kind: KindResponse, Error: &ErrorInfo{Code: code, Message: message}}
}

// Target returns the operation for requests and the name for notifications.
func (m Message) Target() string {
	switch m.Kind {
	case KindRequest:
		return m.Operation
	case KindNotification:
		return m.Name
	default:
		return ""
	}
}

// Failed reports whether m is an error response.
func (m Message) Failed() bool {
	return m.Kind == KindResponse && m.Error != nil
}

// ValidateInbound is Validate for decoded messages. A success response that
// omitted its payload is accepted and given a JSON null payload, matching what
// NewResult sends for a handler that returned nothing.
func (m Message) ValidateInbound() (Message, error) {
	if m.Kind == KindResponse && m.Error == nil && len(m.Payload) == 0 {
		m.Payload = json.RawMessage("null")
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate enforces the tagged-union shape of m.
func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: kind=%s", ErrMissingID, m.Kind)
	}
	switch m.Kind {
	case KindRequest:
		if strings.TrimSpace(m.Operation) == "" {
			return fmt.Errorf("%w: request %s", ErrMissingTarget, m.ID)
		}
		if m.Error != nil {
			return fmt.Errorf("%w: request %s carries error", ErrInvalidMessage, m.ID)
		}
	case KindNotification:
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: notification %s", ErrMissingTarget, m.ID)
		}
		if m.Error != nil {
			return fmt.Errorf("%w: notification %s carries error", ErrInvalidMessage, m.ID)
		}
	case KindResponse:
		hasPayload := len(m.Payload) > 0
		hasError := m.Error != nil
		if hasPayload == hasError {
			return fmt.Errorf("%w: response %s", ErrAmbiguousReply, m.ID)
		}
		if hasError && strings.TrimSpace(m.Error.Code) == "" {
			return fmt.Errorf("%w: response %s missing error code", ErrInvalidMessage, m.ID)
		}
	}
	return nil
}
