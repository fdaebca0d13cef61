package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func handlerReturning(v string) Handler {
	return func(context.Context, json.RawMessage) (any, error) { return v, nil }
}

func TestRegistryOverwriteWinsAndStaleUnregisterIsNoop(t *testing.T) {
	r := newRegistry()
	unregisterFirst := r.setHandler("op", handlerReturning("first"))
	unregisterSecond := r.setHandler("op", handlerReturning("second"))

	fn, ok := r.handler("op")
	if !ok {
		t.Fatalf("expected handler")
	}
	if got, _ := fn(context.Background(), nil); got != "second" {
		t.Fatalf("expected replacement handler, got %v", got)
	}

	unregisterFirst()
	if _, ok := r.handler("op"); !ok {
		t.Fatalf("stale unregister removed the active handler")
	}
	unregisterSecond()
	if _, ok := r.handler("op"); ok {
		t.Fatalf("active unregister should clear the handler")
	}
	unregisterSecond()
}

func TestRegistryListenersKeepOrderAndRemoveExactInstance(t *testing.T) {
	r := newRegistry()
	var calls []string
	mk := func(tag string) Listener {
		return func(context.Context, json.RawMessage) error {
			calls = append(calls, tag)
			return nil
		}
	}
	r.addListener("evt", mk("a"))
	unregisterB := r.addListener("evt", mk("b"))
	r.addListener("evt", mk("c"))

	for _, fn := range r.listenersFor("evt") {
		_ = fn(context.Background(), nil)
	}
	unregisterB()
	unregisterB()
	for _, fn := range r.listenersFor("evt") {
		_ = fn(context.Background(), nil)
	}
	if got := strings.Join(calls, ""); got != "abcac" {
		t.Fatalf("unexpected call order %q", got)
	}
}

func TestRegistryDropsEmptyNames(t *testing.T) {
	r := newRegistry()
	noop := func(context.Context, json.RawMessage) error { return nil }
	u1 := r.addListener("evt", noop)
	u2 := r.addListener("evt", noop)
	r.addListener("other", noop)
	r.setHandler("z.op", handlerReturning(""))
	r.setHandler("a.op", handlerReturning(""))

	if got := strings.Join(r.names(), ","); got != "evt,other" {
		t.Fatalf("names=%s", got)
	}
	if got := strings.Join(r.operations(), ","); got != "a.op,z.op" {
		t.Fatalf("operations=%s", got)
	}
	u1()
	if len(r.listenersFor("evt")) != 1 {
		t.Fatalf("expected one remaining listener")
	}
	u2()
	if got := strings.Join(r.names(), ","); got != "other" {
		t.Fatalf("empty name not dropped: %s", got)
	}
}
