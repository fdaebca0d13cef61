package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/bridgectl/internal/protocol"
)

// Error codes carried in response errors. CodeTimeout is local only.
const (
	CodeNoHandler      = "NO_HANDLER"
	CodeHandlerError   = "HANDLER_ERROR"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeTimeout        = "TIMEOUT"
)

var (
	ErrChannelUnavailable = errors.New("bridge: channel unavailable")
	ErrChannelClosed      = errors.New("bridge: channel closed")
	ErrDuplicateID        = errors.New("bridge: duplicate correlation id")
	ErrTimeout            = errors.New("bridge: request timeout")
	ErrNilAdapter         = errors.New("bridge: adapter is nil")
	ErrInvalidTarget      = errors.New("bridge: operation or name required")
)

// RemoteError is an error produced by the peer's handler. Handlers may
// return one to answer with a domain-specific code.
type RemoteError struct {
	Code    string
	Message string
}

func NewRemoteError(code, message string) *RemoteError {
	return &RemoteError{Code: code, Message: message}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: remote %s: %s", e.Code, e.Message)
}

// TimeoutError settles a request whose response did not arrive in time.
type TimeoutError struct {
	ID        string
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bridge: request %q (%s) timed out after %dms", e.Operation, e.ID, e.Timeout.Milliseconds())
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// DecodeError reports an inbound string that is not a valid message.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bridge: decode inbound message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an outbound message that could not be serialized.
type EncodeError struct {
	ID   string
	Kind protocol.Kind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("bridge: encode %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// HandlerError reports a request handler failure on the callee side.
type HandlerError struct {
	ID        string
	Operation string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("bridge: handler %q (%s): %v", e.Operation, e.ID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ListenerError reports one failing notification listener.
type ListenerError struct {
	ID    string
	Name  string
	Index int
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("bridge: listener %d for %q (%s): %v", e.Index, e.Name, e.ID, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// Code returns the bridge error code carried by err, or "".
func Code(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code
	}
	if errors.Is(err, ErrTimeout) {
		return CodeTimeout
	}
	return ""
}
