package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/bridgectl/internal/codec"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/transport/memory"
)

// recordingAdapter captures outbound strings and lets tests inject inbound
// ones directly.
type recordingAdapter struct {
	available atomic.Bool
	sendErr   error

	mu   sync.Mutex
	sent []string
	fn   func(raw string)
	out  chan string
}

func newRecordingAdapter() *recordingAdapter {
	a := &recordingAdapter{out: make(chan string, 64)}
	a.available.Store(true)
	return a
}

func (a *recordingAdapter) Available() bool { return a.available.Load() }

func (a *recordingAdapter) Send(raw string) error {
	if a.sendErr != nil {
		return a.sendErr
	}
	a.mu.Lock()
	a.sent = append(a.sent, raw)
	a.mu.Unlock()
	a.out <- raw
	return nil
}

func (a *recordingAdapter) Subscribe(fn func(raw string)) func() {
	a.mu.Lock()
	a.fn = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		a.fn = nil
		a.mu.Unlock()
	}
}

// deliver injects raw as if it arrived from the peer.
func (a *recordingAdapter) deliver(raw string) {
	a.mu.Lock()
	fn := a.fn
	a.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

func (a *recordingAdapter) subscribed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fn != nil
}

// next decodes the next outbound message.
func (a *recordingAdapter) next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case raw := <-a.out:
		msg, err := codec.Default().Decode(raw)
		if err != nil {
			t.Fatalf("decode outbound %q: %v", raw, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for outbound message")
		return protocol.Message{}
	}
}

func encode(t *testing.T, msg protocol.Message) string {
	t.Helper()
	raw, err := codec.Default().Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

// errorLog is a goroutine-safe ErrorSink.
type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) sink(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *errorLog) snapshot() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]error, len(l.errs))
	copy(out, l.errs)
	return out
}

func (l *errorLog) has(target any) bool {
	for _, err := range l.snapshot() {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// linkedPair returns a host and guest channel joined by an in-memory pair.
func linkedPair(t *testing.T, opts ...Option) (host *Channel, guest *Channel) {
	t.Helper()
	a, b := memory.NewPair()
	host, err := New(a, append([]Option{WithRole(RoleHost)}, opts...)...)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	guest, err = New(b, append([]Option{WithRole(RoleGuest)}, opts...)...)
	if err != nil {
		t.Fatalf("new guest: %v", err)
	}
	t.Cleanup(func() {
		_ = host.Close()
		_ = guest.Close()
		_ = a.Close()
		_ = b.Close()
	})
	return host, guest
}

func linkedPairAdapters(t *testing.T) (*memory.Endpoint, *memory.Endpoint) {
	t.Helper()
	a, b := memory.NewPair()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}
