package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/rs/zerolog/log"
)

const (
	opPing       = "system.ping"
	opEcho       = "system.echo"
	opTime       = "system.time"
	opOperations = "system.operations"

	evtReady = "peer.ready"
)

type timeReply struct {
	UnixMS  int64  `json:"unix_ms"`
	RFC3339 string `json:"rfc3339"`
}

type readyNotice struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Operations []string `json:"operations"`
}

// registerDemo installs the built-in operations every bridgectl peer serves.
func registerDemo(ch *bridge.Channel) {
	bridge.HandleFunc(ch, opPing, func(context.Context, struct{}) (string, error) {
		return "pong", nil
	})
	ch.Handle(opEcho, func(_ context.Context, payload json.RawMessage) (any, error) {
		return payload, nil
	})
	bridge.HandleFunc(ch, opTime, func(context.Context, struct{}) (timeReply, error) {
		now := time.Now()
		return timeReply{UnixMS: now.UnixMilli(), RFC3339: now.UTC().Format(time.RFC3339Nano)}, nil
	})
	bridge.HandleFunc(ch, opOperations, func(context.Context, struct{}) ([]string, error) {
		return ch.Operations(), nil
	})
	bridge.ListenFunc(ch, evtReady, func(_ context.Context, n readyNotice) error {
		log.Info().
			Str("peer", n.Name).
			Str("peer_role", n.Role).
			Strs("operations", n.Operations).
			Msg("peer ready")
		return nil
	})
}

// announce tells the peer which operations this side serves.
func announce(ch *bridge.Channel) error {
	return ch.Notify(evtReady, readyNotice{
		Name:       ch.Name(),
		Role:       string(ch.Role()),
		Operations: ch.Operations(),
	})
}
