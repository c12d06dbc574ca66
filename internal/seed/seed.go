// Package seed produces the shared per-session seed both clients feed into
// their content generation. It only has to avoid cross-session collisions,
// nothing cryptographic depends on it, but crypto/rand is the cheapest way
// to get independent draws without carrying generator state.
package seed

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Generate returns a fresh 64-bit seed. Falls back to math/rand if the
// system entropy source fails, which keeps session start from ever blocking
// on it.
func Generate() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return mrand.Uint64()
	}
	return binary.BigEndian.Uint64(buf[:])
}
