// Package protocol owns the bridge wire contract.
//
// Ownership boundary:
// - message kinds and the tagged-union Message shape
// - structural validation at the decode boundary
// - frame/tlv primitives and per-kind schema (subpackages)
//
// Payloads are opaque here. Codecs live in internal/codec and the
// correlation/dispatch core in internal/bridge.
package protocol
