package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bridgectl/internal/codec"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxIDAttempts = 8

// Channel is one side of a bridge. It owns its pending requests and handler
// registry; nothing is shared between channels.
type Channel struct {
	cfg     Config
	adapter Adapter
	codec   codec.Codec
	ids     IDGenerator
	log     zerolog.Logger
	sink    ErrorSink

	pending  *correlator
	registry *registry

	ctx         context.Context
	cancel      context.CancelFunc
	closed      atomic.Bool
	closeOnce   sync.Once
	unsubscribe func()
}

// New creates a channel over adapter and subscribes to its inbound messages.
func New(adapter Adapter, opts ...Option) (*Channel, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.WithDefaults()

	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:      cfg,
		adapter:  adapter,
		codec:    cfg.Codec,
		ids:      cfg.IDs,
		log:      base.With().Str("role", string(cfg.Role)).Str("channel", cfg.Name).Logger(),
		registry: newRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.sink = cfg.ErrorSink
	if c.sink == nil {
		c.sink = func(err error) {
			c.log.Error().Err(err).Msg("bridge error")
		}
	}
	c.pending = newCorrelator(c.onSettle)
	c.unsubscribe = adapter.Subscribe(c.HandleInbound)

	c.log.Debug().Str("codec", c.codec.Name()).Dur("timeout", cfg.Timeout).Msg("bridge channel open")
	return c, nil
}

func (c *Channel) Role() Role { return c.cfg.Role }

func (c *Channel) Name() string { return c.cfg.Name }

// Pending returns the number of requests awaiting settlement.
func (c *Channel) Pending() int { return c.pending.len() }

// PendingRequests lists in-flight requests sorted by id.
func (c *Channel) PendingRequests() []PendingInfo { return c.pending.list() }

// Operations lists operations with an active handler.
func (c *Channel) Operations() []string { return c.registry.operations() }

// Names lists notification names with at least one listener.
func (c *Channel) Names() []string { return c.registry.names() }

func (c *Channel) Closed() bool { return c.closed.Load() }

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} { return c.ctx.Done() }

// Handle registers fn as the handler for operation, replacing any previous
// handler. The returned func is a no-op once fn has been replaced.
func (c *Channel) Handle(operation string, fn Handler) (unregister func()) {
	if fn == nil {
		panic("bridge: nil handler for " + operation)
	}
	return c.registry.setHandler(operation, fn)
}

// Listen adds fn to the listeners for name.
func (c *Channel) Listen(name string, fn Listener) (unregister func()) {
	if fn == nil {
		panic("bridge: nil listener for " + name)
	}
	return c.registry.addListener(name, fn)
}

// Request invokes operation on the peer and waits for its response, the
// timeout, ctx, or Close, whichever happens first. A nil ctx is treated as
// context.Background().
func (c *Channel) Request(ctx context.Context, operation string, payload any, opts ...CallOption) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}
	if strings.TrimSpace(operation) == "" {
		return nil, ErrInvalidTarget
	}
	if !c.adapter.Available() {
		err := fmt.Errorf("%w: request %q", ErrChannelUnavailable, operation)
		c.report(err)
		observability.RecordRequest(string(c.cfg.Role), operation, observability.OutcomeUnavailable, 0)
		return nil, err
	}

	call := callOptions{timeout: c.cfg.Timeout}
	for _, opt := range opts {
		opt(&call)
	}

	p, err := c.register(operation, call.timeout)
	if err != nil {
		return nil, err
	}
	observability.AddPending(string(c.cfg.Role), 1)

	body, err := marshalPayload(payload)
	if err != nil {
		eerr := &EncodeError{ID: p.id, Kind: protocol.KindRequest, Err: err}
		c.report(eerr)
		c.pending.settle(p.id, outcome{err: eerr})
	} else if err := c.send(protocol.NewRequest(p.id, operation, body)); err != nil {
		c.reportSendFailure(err)
		c.pending.settle(p.id, outcome{err: err})
	}

	select {
	case o := <-p.done:
		return o.payload, o.err
	case <-ctx.Done():
		c.pending.settle(p.id, outcome{err: ctx.Err()})
		o := <-p.done
		return o.payload, o.err
	}
}

// Notify emits a fire-and-forget notification. When the adapter is not
// available the notification is dropped and Notify returns nil.
func (c *Channel) Notify(name string, payload any) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if strings.TrimSpace(name) == "" {
		return ErrInvalidTarget
	}
	role := string(c.cfg.Role)
	if !c.adapter.Available() {
		observability.RecordNotification(role, name, observability.DirectionDropped)
		c.log.Debug().Str("name", name).Msg("notification dropped: channel unavailable")
		return nil
	}

	id := c.ids.NewID()
	body, err := marshalPayload(payload)
	if err != nil {
		eerr := &EncodeError{ID: id, Kind: protocol.KindNotification, Err: err}
		c.report(eerr)
		return eerr
	}
	if err := c.send(protocol.NewNotification(id, name, body)); err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			observability.RecordNotification(role, name, observability.DirectionDropped)
			return nil
		}
		c.reportSendFailure(err)
		return err
	}
	observability.RecordNotification(role, name, observability.DirectionOutbound)
	return nil
}

// Close detaches from the adapter, cancels running handlers' contexts and
// settles every pending request with ErrChannelClosed. It is idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.cancel()
		n := c.pending.clear(ErrChannelClosed)
		c.log.Debug().Int("settled", n).Msg("bridge channel closed")
	})
	return nil
}

func (c *Channel) register(operation string, timeout time.Duration) (*pendingRequest, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		p, err := c.pending.register(c.ids.NewID(), operation, timeout)
		if errors.Is(err, ErrDuplicateID) {
			c.log.Warn().Str("operation", operation).Int("attempt", attempt+1).Msg("correlation id collision")
			continue
		}
		return p, err
	}
	return nil, ErrDuplicateID
}

// send encodes msg and hands it to the adapter.
func (c *Channel) send(msg protocol.Message) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	msg.TimestampMS = uint64(time.Now().UnixMilli())
	raw, err := c.codec.Encode(msg)
	if err != nil {
		return &EncodeError{ID: msg.ID, Kind: msg.Kind, Err: err}
	}
	if !c.adapter.Available() {
		return fmt.Errorf("%w: %s %s", ErrChannelUnavailable, msg.Kind, msg.ID)
	}
	if err := c.adapter.Send(raw); err != nil {
		return fmt.Errorf("bridge: send %s %s: %w", msg.Kind, msg.ID, err)
	}
	return nil
}

func (c *Channel) onSettle(p *pendingRequest, o outcome) {
	role := string(c.cfg.Role)
	result := classify(o.err)
	observability.AddPending(role, -1)
	observability.RecordRequest(role, p.operation, result, time.Since(p.sentAt))
	c.log.Debug().
		Str("id", p.id).
		Str("operation", p.operation).
		Str("outcome", result).
		Dur("elapsed", time.Since(p.sentAt)).
		Msg("request settled")
}

func (c *Channel) report(err error) {
	if err == nil {
		return
	}
	c.sink(err)
}

// reportSendFailure forwards send errors except the expected ones after Close.
func (c *Channel) reportSendFailure(err error) {
	if errors.Is(err, ErrChannelClosed) {
		c.log.Debug().Err(err).Msg("send after close")
		return
	}
	c.report(err)
}

func classify(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrTimeout):
		return observability.OutcomeTimeout
	case errors.Is(err, ErrChannelClosed):
		return observability.OutcomeClosed
	case errors.Is(err, ErrChannelUnavailable):
		return observability.OutcomeUnavailable
	case errors.As(err, &remote):
		return observability.OutcomeRemoteError
	default:
		return observability.OutcomeLocalError
	}
}

func marshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(v)
	}
}
