// Package stdio carries bridge messages as newline-delimited lines over a
// reader/writer pair, typically a child process's stdin and stdout.
package stdio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var (
	ErrLineTooLarge = errors.New("stdio: message line too large")
	ErrEmbeddedLF   = errors.New("stdio: message contains newline")
)

// Conn is a bridge adapter over one line stream in each direction.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	closers []io.Closer
	maxLine int

	writeMu sync.Mutex
	subs    transport.Subscribers

	dropped atomic.Uint64

	open      atomic.Bool
	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// New starts reading lines from r. closers are closed by Close, usually the
// same values as r and w. The read buffer never grows past
// cfg.MaxMessageBytes; longer lines are skipped up to the next newline.
func New(r io.Reader, w io.Writer, cfg transport.Config, closers ...io.Closer) *Conn {
	cfg = cfg.WithDefaults()
	c := &Conn{
		reader:   bufio.NewReaderSize(r, cfg.MaxMessageBytes),
		writer:   w,
		closers:  closers,
		maxLine:  cfg.MaxMessageBytes,
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	c.open.Store(true)
	go c.readLoop()
	return c
}

func (c *Conn) Available() bool {
	return c.open.Load()
}

// Send writes raw followed by a newline.
func (c *Conn) Send(raw string) error {
	if !c.open.Load() {
		return transport.ErrClosed
	}
	if strings.ContainsAny(raw, "\r\n") {
		return ErrEmbeddedLF
	}
	if len(raw)+1 > c.maxLine {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLarge, len(raw))
	}
	line := make([]byte, 0, len(raw)+1)
	line = append(line, raw...)
	line = append(line, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(line); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	return nil
}

func (c *Conn) Subscribe(fn func(raw string)) func() {
	return c.subs.Add(fn)
}

// Done is closed when the read side ends or Close is called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Dropped returns how many inbound lines were discarded for exceeding the
// size limit.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// Err returns the error that ended the read loop, nil on clean EOF or Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		for _, cl := range c.closers {
			err = multierr.Append(err, cl.Close())
		}
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer c.Close()
	discarding := false
	for {
		line, err := c.reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !discarding {
				c.drop(len(line))
			}
			discarding = true
			continue
		}
		if discarding {
			// tail of an oversize line
			discarding = false
			line = nil
		}
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && c.open.Load() {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
				log.Warn().Err(err).Msg("stdio read loop ended")
			}
			return
		}
	}
}

func (c *Conn) dispatch(line []byte) {
	if len(line) > c.maxLine {
		c.drop(len(line))
		return
	}
	raw := strings.TrimRight(string(line), "\r\n")
	if raw == "" || !c.open.Load() {
		return
	}
	c.subs.Publish(raw)
}

func (c *Conn) drop(n int) {
	c.dropped.Add(1)
	log.Warn().Int("bytes", n).Int("max", c.maxLine).Msg("stdio line dropped: too large")
}
