package memory

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/bridgectl/internal/testutil/testlog"
	"github.com/danmuck/bridgectl/internal/transport"
)

func TestPairDeliversInSendOrder(t *testing.T) {
	testlog.Start(t)
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	got := make(chan string, 16)
	b.Subscribe(func(raw string) { got <- raw })
	for i := 0; i < 10; i++ {
		if err := a.Send(strconv.Itoa(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		select {
		case raw := <-got:
			if raw != strconv.Itoa(i) {
				t.Fatalf("out of order: got=%s want=%d", raw, i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	testlog.Start(t)
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	first := make(chan string, 4)
	second := make(chan string, 4)
	unsub := b.Subscribe(func(raw string) { first <- raw })
	b.Subscribe(func(raw string) { second <- raw })
	unsub()
	unsub()

	if err := a.Send("x"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatalf("remaining subscriber not called")
	}
	select {
	case raw := <-first:
		t.Fatalf("unsubscribed fn received %q", raw)
	default:
	}
}

func TestAvailabilityAndClose(t *testing.T) {
	testlog.Start(t)
	a, b := NewPair()
	if !a.Available() || !b.Available() {
		t.Fatalf("new pair should be available")
	}
	b.SetAvailable(false)
	if a.Available() {
		t.Fatalf("peer pause should make a unavailable")
	}
	b.SetAvailable(true)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = b.Close()
	if a.Available() {
		t.Fatalf("closed peer should make a unavailable")
	}
	if err := a.Send("x"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.Send("x"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	b.SetAvailable(true)
	if b.Available() {
		t.Fatalf("closed endpoint cannot be resumed")
	}
	_ = a.Close()
}
