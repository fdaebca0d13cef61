package bridge

import (
	"context"
	"encoding/json"
)

// Call is Request with a JSON decoded result.
func Call[Resp any](ctx context.Context, c *Channel, operation string, payload any, opts ...CallOption) (Resp, error) {
	var out Resp
	raw, err := c.Request(ctx, operation, payload, opts...)
	if err != nil {
		return out, err
	}
	if err := decodePayload(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// HandleFunc registers a typed handler. Requests whose payload does not
// decode into Req are answered with CodeInvalidPayload.
func HandleFunc[Req, Resp any](c *Channel, operation string, fn func(ctx context.Context, req Req) (Resp, error)) (unregister func()) {
	return c.Handle(operation, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req Req
		if err := decodePayload(payload, &req); err != nil {
			return nil, NewRemoteError(CodeInvalidPayload, err.Error())
		}
		return fn(ctx, req)
	})
}

// ListenFunc registers a typed notification listener.
func ListenFunc[T any](c *Channel, name string, fn func(ctx context.Context, v T) error) (unregister func()) {
	return c.Listen(name, func(ctx context.Context, payload json.RawMessage) error {
		var v T
		if err := decodePayload(payload, &v); err != nil {
			return err
		}
		return fn(ctx, v)
	})
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
