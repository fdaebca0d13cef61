package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/klauspost/compress/zstd"
)

const maxDecodedBytes = 8 * 1024 * 1024

// Zstd compresses the output of another codec. EncodeAll/DecodeAll are safe
// for concurrent use, so one Zstd may serve a whole channel.
type Zstd struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func NewZstd(inner Codec) (*Zstd, error) {
	if inner == nil {
		inner = JSON{}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("codec/zstd: encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBytes))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("codec/zstd: decoder: %w", err)
	}
	return &Zstd{inner: inner, enc: enc, dec: dec}, nil
}

func (z *Zstd) Name() string { return "zstd+" + z.inner.Name() }

func (z *Zstd) Encode(msg protocol.Message) (string, error) {
	s, err := z.inner.Encode(msg)
	if err != nil {
		return "", err
	}
	compressed := z.enc.EncodeAll([]byte(s), nil)
	return base64.StdEncoding.EncodeToString(compressed), nil
}

func (z *Zstd) Decode(raw string) (protocol.Message, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	plain, err := z.dec.DecodeAll(b, nil)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	return z.inner.Decode(string(plain))
}

// Close releases the decoder's background resources.
func (z *Zstd) Close() error {
	z.dec.Close()
	return z.enc.Close()
}
