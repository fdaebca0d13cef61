// Package memory links two bridge adapters inside one process.
package memory

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/bridgectl/internal/transport"
)

const defaultBuffer = 256

// Endpoint is one side of an in-process pair. Messages sent on one endpoint
// are delivered, in send order, to the subscribers of its peer.
type Endpoint struct {
	peer  *Endpoint
	inbox chan string
	done  chan struct{}

	available atomic.Bool
	closeOnce sync.Once
	subs      transport.Subscribers
}

// NewPair returns two linked endpoints, each with a delivery goroutine.
func NewPair() (*Endpoint, *Endpoint) {
	a := newEndpoint()
	b := newEndpoint()
	a.peer, b.peer = b, a
	go a.deliver()
	go b.deliver()
	return a, b
}

func newEndpoint() *Endpoint {
	e := &Endpoint{
		inbox: make(chan string, defaultBuffer),
		done:  make(chan struct{}),
	}
	e.available.Store(true)
	return e
}

// Available reports whether both ends are open and not paused.
func (e *Endpoint) Available() bool {
	return e.available.Load() && e.peer.available.Load()
}

// SetAvailable pauses or resumes this endpoint without closing it.
func (e *Endpoint) SetAvailable(v bool) {
	select {
	case <-e.done:
		return
	default:
	}
	e.available.Store(v)
}

func (e *Endpoint) Send(raw string) error {
	select {
	case <-e.done:
		return transport.ErrClosed
	case <-e.peer.done:
		return transport.ErrClosed
	default:
	}
	select {
	case e.peer.inbox <- raw:
		return nil
	case <-e.peer.done:
		return transport.ErrClosed
	case <-e.done:
		return transport.ErrClosed
	}
}

func (e *Endpoint) Subscribe(fn func(raw string)) func() {
	return e.subs.Add(fn)
}

// Close stops delivery on this endpoint and makes the pair unavailable.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.available.Store(false)
		close(e.done)
	})
	return nil
}

func (e *Endpoint) deliver() {
	for {
		select {
		case <-e.done:
			return
		case raw := <-e.inbox:
			e.subs.Publish(raw)
		}
	}
}
