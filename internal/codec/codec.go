// Package codec converts bridge messages to and from the strings carried by
// a channel adapter.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/bridgectl/internal/protocol"
)

var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec is the pluggable serializer used by a bridge channel. Decode must
// return an error for anything that is not one of the three message kinds.
type Codec interface {
	Name() string
	Encode(msg protocol.Message) (string, error)
	Decode(raw string) (protocol.Message, error)
}

// Default returns the JSON codec.
func Default() Codec {
	return JSON{}
}

// ByName resolves a codec from configuration. Supported names are json,
// frame, zstd (zstd over json) and zstd+frame.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "frame":
		return NewFrame(), nil
	case "zstd", "zstd+json":
		return NewZstd(JSON{})
	case "zstd+frame":
		return NewZstd(NewFrame())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
