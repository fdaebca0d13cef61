package bridge

import (
	"errors"
	"strings"
	"testing"
)

func TestIDGeneratorsProduceDistinctIDs(t *testing.T) {
	for name, gen := range map[string]IDGenerator{
		"uuid":     UUIDs(),
		"random":   RandomIDs(),
		"sequence": SequenceIDs("req"),
	} {
		seen := make(map[string]struct{}, 2000)
		for i := 0; i < 2000; i++ {
			id := gen.NewID()
			if strings.TrimSpace(id) == "" {
				t.Fatalf("%s: empty id", name)
			}
			if _, dup := seen[id]; dup {
				t.Fatalf("%s: duplicate id %q", name, id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestSequenceIDsFormat(t *testing.T) {
	gen := SequenceIDs("host")
	if a, b := gen.NewID(), gen.NewID(); a != "host-1" || b != "host-2" {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

func TestRegisterRetriesOnCollision(t *testing.T) {
	calls := 0
	gen := IDFunc(func() string {
		calls++
		if calls <= 2 {
			return "same"
		}
		return "fresh"
	})
	c, err := New(newRecordingAdapter(), WithIDGenerator(gen))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	first, err := c.register("op", 0)
	if err != nil || first.id != "same" {
		t.Fatalf("first register: %v", err)
	}
	second, err := c.register("op", 0)
	if err != nil || second.id != "fresh" {
		t.Fatalf("expected retry to fresh id, got %v", err)
	}
	stuck := IDFunc(func() string { return "same" })
	c.ids = stuck
	if _, err := c.register("op", 0); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID after retries, got %v", err)
	}
}
