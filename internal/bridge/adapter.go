package bridge

// Adapter moves raw encoded messages between the two peers.
//
// Subscribe must deliver inbound strings from a single goroutine at a time;
// the returned func detaches fn and is safe to call more than once.
type Adapter interface {
	Available() bool
	Send(raw string) error
	Subscribe(fn func(raw string)) (unsubscribe func())
}
