package stdio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/bridgectl/internal/testutil/testlog"
	"github.com/danmuck/bridgectl/internal/transport"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func TestReadLoopDeliversLinesUntilEOF(t *testing.T) {
	testlog.Start(t)
	pr, pw := io.Pipe()
	c := New(pr, io.Discard, transport.DefaultConfig(), pr)

	var mu sync.Mutex
	var got []string
	c.Subscribe(func(raw string) {
		mu.Lock()
		got = append(got, raw)
		mu.Unlock()
	})
	go func() {
		_, _ = pw.Write([]byte("one\r\n\ntwo\nthree"))
		_ = pw.Close()
	}()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop did not finish")
	}
	if c.Available() {
		t.Fatalf("conn should be unavailable after EOF")
	}
	if err := c.Err(); err != nil {
		t.Fatalf("clean EOF should not set Err: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, ",") != "one,two,three" {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestPipeDeliversInOrder(t *testing.T) {
	testlog.Start(t)
	pr, pw := io.Pipe()
	c := New(pr, io.Discard, transport.DefaultConfig(), pr)
	defer c.Close()

	got := make(chan string, 4)
	c.Subscribe(func(raw string) { got <- raw })
	go func() {
		_, _ = pw.Write([]byte("a\nb\nc\n"))
	}()
	for _, want := range []string{"a", "b", "c"} {
		select {
		case raw := <-got:
			if raw != want {
				t.Fatalf("got=%q want=%q", raw, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}
}

func TestSendWritesLinesAndRejectsNewlines(t *testing.T) {
	testlog.Start(t)
	pr, _ := io.Pipe()
	out := &syncBuffer{}
	cfg := transport.DefaultConfig()
	cfg.MaxMessageBytes = 16
	c := New(pr, out, cfg, pr)
	defer c.Close()

	if err := c.Send(`{"id":"1"}`); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := out.String(); got != "{\"id\":\"1\"}\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if err := c.Send("a\nb"); !errors.Is(err, ErrEmbeddedLF) {
		t.Fatalf("expected ErrEmbeddedLF, got %v", err)
	}
	if err := c.Send(strings.Repeat("x", 32)); !errors.Is(err, ErrLineTooLarge) {
		t.Fatalf("expected ErrLineTooLarge, got %v", err)
	}
}

func TestCloseCombinesCloserErrors(t *testing.T) {
	testlog.Start(t)
	pr, _ := io.Pipe()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	c := New(pr, io.Discard, transport.DefaultConfig(),
		pr,
		closeFunc(func() error { return errA }),
		closeFunc(func() error { return errB }),
	)
	err := c.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected combined error, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close should be nil, got %v", err)
	}
	if err := c.Send("x"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOversizeLineIsSkippedWithoutBuffering(t *testing.T) {
	testlog.Start(t)
	pr, pw := io.Pipe()
	cfg := transport.DefaultConfig()
	cfg.MaxMessageBytes = 64
	c := New(pr, io.Discard, cfg, pr)
	defer c.Close()
	if c.reader.Size() != 64 {
		t.Fatalf("read buffer=%d want 64", c.reader.Size())
	}

	got := make(chan string, 4)
	c.Subscribe(func(raw string) { got <- raw })
	go func() {
		chunk := []byte(strings.Repeat("x", 64))
		for i := 0; i < 1000; i++ {
			if _, err := pw.Write(chunk); err != nil {
				return
			}
		}
		_, _ = pw.Write([]byte("\nok\n"))
	}()

	select {
	case raw := <-got:
		if raw != "ok" {
			t.Fatalf("got %q want ok", raw)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("line after oversize input never arrived")
	}
	if n := c.Dropped(); n != 1 {
		t.Fatalf("dropped=%d want 1", n)
	}
}
