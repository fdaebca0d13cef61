package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
)

// Reasons recorded when an inbound message is dropped.
const (
	dropClosed  = "closed"
	dropDecode  = "decode"
	dropUnknown = "unknown_id"
)

// HandleInbound is the single entry point for raw inbound messages. Adapters
// normally reach it through Subscribe; it never panics out to the caller.
func (c *Channel) HandleInbound(raw string) {
	role := string(c.cfg.Role)
	if c.closed.Load() {
		observability.RecordDropped(role, dropClosed)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.report(fmt.Errorf("bridge: inbound dispatch panic: %v", r))
		}
	}()

	msg, err := c.codec.Decode(raw)
	if err != nil {
		observability.RecordDropped(role, dropDecode)
		c.report(&DecodeError{Raw: raw, Err: err})
		return
	}

	switch msg.Kind {
	case protocol.KindResponse:
		c.dispatchResponse(msg)
	case protocol.KindRequest:
		c.dispatchRequest(msg)
	case protocol.KindNotification:
		c.dispatchNotification(msg)
	}
}

func (c *Channel) dispatchResponse(msg protocol.Message) {
	var o outcome
	if msg.Error != nil {
		o.err = NewRemoteError(msg.Error.Code, msg.Error.Message)
	} else {
		o.payload = msg.Payload
	}
	if !c.pending.settle(msg.ID, o) {
		observability.RecordDropped(string(c.cfg.Role), dropUnknown)
		c.log.Debug().Str("id", msg.ID).Msg("response for unknown or settled request dropped")
	}
}

func (c *Channel) dispatchRequest(msg protocol.Message) {
	fn, ok := c.registry.handler(msg.Operation)
	if !ok {
		observability.RecordHandled(string(c.cfg.Role), msg.Operation, CodeNoHandler)
		c.respond(protocol.NewFailure(msg.ID, CodeNoHandler,
			fmt.Sprintf("no handler registered for operation %q", msg.Operation)))
		return
	}
	go c.runHandler(msg, fn)
}

// runHandler executes fn off the dispatch goroutine and sends exactly one
// response for msg.
func (c *Channel) runHandler(msg protocol.Message, fn Handler) {
	result, err := c.invoke(msg, fn)
	if err == nil {
		body, merr := json.Marshal(result)
		if merr != nil {
			err = fmt.Errorf("encode result: %w", merr)
		} else {
			observability.RecordHandled(string(c.cfg.Role), msg.Operation, "")
			c.respond(protocol.NewResult(msg.ID, body))
			return
		}
	}

	code, text := CodeHandlerError, err.Error()
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Code != "" {
		code, text = remote.Code, remote.Message
	}
	c.report(&HandlerError{ID: msg.ID, Operation: msg.Operation, Err: err})
	observability.RecordHandled(string(c.cfg.Role), msg.Operation, code)
	c.respond(protocol.NewFailure(msg.ID, code, text))
}

func (c *Channel) invoke(msg protocol.Message, fn Handler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	payload := msg.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return fn(c.ctx, payload)
}

// dispatchNotification runs listeners in registration order on the dispatch
// goroutine. A failing listener does not stop the rest.
func (c *Channel) dispatchNotification(msg protocol.Message) {
	observability.RecordNotification(string(c.cfg.Role), msg.Name, observability.DirectionInbound)
	listeners := c.registry.listenersFor(msg.Name)
	if len(listeners) == 0 {
		c.log.Debug().Str("name", msg.Name).Msg("notification without listeners")
		return
	}
	payload := msg.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	for i, fn := range listeners {
		if err := c.notifyListener(c.ctx, fn, payload); err != nil {
			c.report(&ListenerError{ID: msg.ID, Name: msg.Name, Index: i, Err: err})
		}
	}
}

func (c *Channel) notifyListener(ctx context.Context, fn Listener, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, payload)
}

func (c *Channel) respond(msg protocol.Message) {
	if err := c.send(msg); err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			c.log.Warn().Str("id", msg.ID).Msg("response dropped: channel unavailable")
			return
		}
		c.reportSendFailure(err)
	}
}
