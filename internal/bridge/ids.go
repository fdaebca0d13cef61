package bridge

import (
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces correlation ids. Ids only need to be unique among the
// requests pending on one channel; they are not a security boundary.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a plain func to IDGenerator.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// UUIDs returns random v4 UUIDs.
func UUIDs() IDGenerator {
	return IDFunc(uuid.NewString)
}

// RandomIDs returns base36 "<unix-ms>-<random>" ids from a non-cryptographic
// source. Do not use them for anything that relies on unpredictability.
func RandomIDs() IDGenerator {
	return IDFunc(func() string {
		return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(rand.Uint64(), 36)
	})
}

// SequenceIDs returns prefix-1, prefix-2, ... Useful for deterministic tests.
func SequenceIDs(prefix string) IDGenerator {
	var n atomic.Uint64
	return IDFunc(func() string {
		return prefix + "-" + strconv.FormatUint(n.Add(1), 10)
	})
}
