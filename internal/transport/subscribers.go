package transport

import "sync"

// Subscribers is the ordered set of inbound callbacks behind an adapter's
// Subscribe. The zero value is ready to use.
type Subscribers struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

type subscriber struct {
	id uint64
	fn func(raw string)
}

// Add registers fn. The returned func removes it and may be called more than
// once.
func (s *Subscribers) Add(fn func(raw string)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish calls every current subscriber with raw in registration order.
func (s *Subscribers) Publish(raw string) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(raw)
	}
}

func (s *Subscribers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
