package bridge

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// outcome is the single terminal result of one request.
type outcome struct {
	payload json.RawMessage
	err     error
}

// pendingRequest tracks one request awaiting its response.
type pendingRequest struct {
	id        string
	operation string
	timeout   time.Duration
	sentAt    time.Time
	timer     *time.Timer
	done      chan outcome
}

// PendingInfo is a read-only view of one in-flight request.
type PendingInfo struct {
	ID        string
	Operation string
	SentAt    time.Time
	Deadline  time.Time
}

// correlator stores pending requests by correlation id. Every entry is
// removed exactly once: by settle, by its timer, or by clear.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  error

	onSettle func(p *pendingRequest, o outcome)
}

func newCorrelator(onSettle func(p *pendingRequest, o outcome)) *correlator {
	return &correlator{
		pending:  make(map[string]*pendingRequest),
		onSettle: onSettle,
	}
}

// register stores a new entry and arms its timer. timeout <= 0 arms nothing.
func (c *correlator) register(id, operation string, timeout time.Duration) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		return nil, c.closed
	}
	if _, exists := c.pending[id]; exists {
		return nil, ErrDuplicateID
	}
	p := &pendingRequest{
		id:        id,
		operation: operation,
		timeout:   timeout,
		sentAt:    time.Now(),
		done:      make(chan outcome, 1),
	}
	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() {
			c.settle(id, outcome{err: &TimeoutError{ID: id, Operation: operation, Timeout: timeout}})
		})
	}
	c.pending[id] = p
	return p, nil
}

// settle removes id and delivers o. It reports false when id is unknown or
// already settled.
func (c *correlator) settle(id string, o outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.finish(p, o)
	return true
}

// clear settles every entry with reason and refuses later registrations.
// It returns the number of entries it settled.
func (c *correlator) clear(reason error) int {
	c.mu.Lock()
	if c.closed == nil {
		c.closed = reason
	}
	drained := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range drained {
		c.finish(p, outcome{err: reason})
	}
	return len(drained)
}

func (c *correlator) finish(p *pendingRequest, o outcome) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- o
	if c.onSettle != nil {
		c.onSettle(p, o)
	}
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *correlator) list() []PendingInfo {
	c.mu.Lock()
	out := make([]PendingInfo, 0, len(c.pending))
	for _, p := range c.pending {
		info := PendingInfo{ID: p.id, Operation: p.operation, SentAt: p.sentAt}
		if p.timeout > 0 {
			info.Deadline = p.sentAt.Add(p.timeout)
		}
		out = append(out, info)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
