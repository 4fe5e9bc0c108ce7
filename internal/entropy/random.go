// Package entropy provides seeded pseudo-random sources for simulation runs.
// A zero seed means "pick one": it is drawn from crypto/rand and reported back
// so the run can be reproduced.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"time"
)

// NewSource returns a generator for seed and the seed actually used.
func NewSource(seed int64) (*mrand.Rand, int64) {
	if seed == 0 {
		seed = CryptoSeed()
		slog.Debug("drew random seed", "seed", seed)
	}
	return mrand.New(mrand.NewSource(seed)), seed
}

// Derive draws a non-zero child seed from rng. Children derived in sequence
// from the same parent are reproducible.
func Derive(rng *mrand.Rand) int64 {
	for {
		if s := rng.Int63(); s != 0 {
			return s
		}
	}
}

// CryptoSeed draws a positive seed from crypto/rand, falling back to the
// clock if the system source fails.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand failed, seeding from clock", "error", err)
		return time.Now().UnixNano()&(1<<63-1) | 1
	}
	s := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if s == 0 {
		s = 1
	}
	return s
}
