// Package bridge owns request/response correlation and notification
// dispatch over a single string channel.
//
// Ownership boundary:
// - correlation ids, pending requests, timeouts
// - handler and listener registration
// - inbound dispatch and outbound responses
//
// One Channel type serves both peer roles. The role only labels logs and
// metrics; everything role-specific lives behind the Adapter.
//
// Lifecycle:
// - New attaches to the adapter
// - Handle/Listen may be called at any time
// - Close settles every pending request with ErrChannelClosed and detaches
package bridge
