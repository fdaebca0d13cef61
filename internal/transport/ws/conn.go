// Package ws carries bridge messages as websocket text frames.
//
// The host side mounts Host as an http.Handler and receives one Conn per
// guest. The guest side uses Dial, which retries with backoff.
package ws

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"
)

// Conn is a bridge adapter over one websocket connection.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	peer         string

	writeMu sync.Mutex
	subs    transport.Subscribers

	open      atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	errMu     sync.Mutex
	err       error
}

func newConn(ws *websocket.Conn, cfg transport.Config, peer string) *Conn {
	ws.MaxPayloadBytes = cfg.MaxMessageBytes
	ws.PayloadType = websocket.TextFrame
	c := &Conn{
		ws:           ws,
		writeTimeout: cfg.WriteTimeout,
		peer:         peer,
		done:         make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

func (c *Conn) Available() bool {
	return c.open.Load()
}

// Send writes raw as one text frame.
func (c *Conn) Send(raw string) error {
	if !c.open.Load() {
		return transport.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := websocket.Message.Send(c.ws, raw); err != nil {
		return fmt.Errorf("ws: send: %w", err)
	}
	return nil
}

func (c *Conn) Subscribe(fn func(raw string)) func() {
	return c.subs.Add(fn)
}

// PeerIdentity is the verified client certificate identity, or "".
func (c *Conn) PeerIdentity() string { return c.peer }

func (c *Conn) RemoteAddr() string {
	if r := c.ws.Request(); r != nil {
		return r.RemoteAddr
	}
	return c.ws.RemoteAddr().String()
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.closeErr = c.ws.Close()
		close(c.done)
	})
	return c.closeErr
}

// run reads frames until the connection ends. Frames above the size limit
// are skipped.
func (c *Conn) run() {
	defer c.Close()
	for {
		var raw string
		err := websocket.Message.Receive(c.ws, &raw)
		if errors.Is(err, websocket.ErrFrameTooLarge) {
			log.Warn().Str("remote", c.RemoteAddr()).Msg("ws frame dropped: too large")
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && c.open.Load() {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
				log.Debug().Err(err).Str("remote", c.RemoteAddr()).Msg("ws read loop ended")
			}
			return
		}
		if raw == "" || !c.open.Load() {
			continue
		}
		c.subs.Publish(raw)
	}
}
