package pyc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Reference vectors from the SipHash paper's test program
// (key 000102...0f, message 00 01 02 ...).
func TestSipHash24_ReferenceVectors(t *testing.T) {
	k0 := uint64(0x0706050403020100)
	k1 := uint64(0x0f0e0d0c0b0a0908)

	assert.Equal(t, uint64(0x726fdb47dd0e0e31), siphash(2, 4, k0, k1, nil))

	msg := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	assert.Equal(t, uint64(0x93f5f5799a932462), siphash(2, 4, k0, k1, msg))
}

func TestSourceHash_Properties(t *testing.T) {
	src := []byte("import os\n")

	// Deterministic.
	assert.Equal(t, SourceHash(3531, SipHash13, src), SourceHash(3531, SipHash13, src))

	// Sensitive to content, magic, and algorithm.
	assert.NotEqual(t, SourceHash(3531, SipHash13, src),
		SourceHash(3531, SipHash13, []byte("import sys\n")))
	assert.NotEqual(t, SourceHash(3531, SipHash13, src), SourceHash(3495, SipHash13, src))
	assert.NotEqual(t, SourceHash(3531, SipHash13, src), SourceHash(3531, SipHash24, src))
}

func TestSipHash_UnalignedTail(t *testing.T) {
	k0 := uint64(0x0706050403020100)
	k1 := uint64(0x0f0e0d0c0b0a0908)

	// Same prefix, different tail lengths must not collide trivially.
	msg := []byte("0123456789abcdef")
	seen := map[uint64]int{}
	for n := 0; n < len(msg); n++ {
		seen[siphash(1, 3, k0, k1, msg[:n])] = n
	}
	assert.Len(t, seen, len(msg))
}
