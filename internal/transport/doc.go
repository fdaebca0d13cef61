// Package transport holds the dial, retry and TLS settings shared by the
// bridge adapters in its subpackages.
//
// Ownership boundary:
// - connect/write timeouts and message size limits
// - retry backoff
// - TLS/mTLS policy and tls.Config construction
//
// Adapters:
// - memory: in-process linked pair
// - stdio: newline-delimited messages over a reader/writer pair
// - ws: websocket text frames, host handler and guest dialer
package transport
