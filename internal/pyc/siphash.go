package pyc

import (
	"encoding/binary"
	"math/bits"
)

// HashAlgorithm identifies the keyed hash the target interpreter uses
// for source hashing. CPython switched its default from SipHash-2-4 to
// SipHash-1-3 in 3.11; the pyc source hash follows the same build-time
// selection.
type HashAlgorithm int

const (
	SipHash24 HashAlgorithm = iota
	SipHash13
)

// SourceHash computes the 8-byte source hash the interpreter records in
// hash-invalidated cache files. CPython keys SipHash with the raw
// 4-byte magic number (interpreted little-endian) and a zero second
// key half.
func SourceHash(magic uint16, algo HashAlgorithm, source []byte) [8]byte {
	key := uint64(magic) | 0x0a0d0000 // magic ++ "\r\n" as a little-endian word
	c, d := 2, 4
	if algo == SipHash13 {
		c, d = 1, 3
	}
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], siphash(c, d, key, 0, source))
	return out
}

func siphash(cRounds, dRounds int, k0, k1 uint64, data []byte) uint64 {
	v0 := 0x736f6d6570736575 ^ k0
	v1 := 0x646f72616e646f6d ^ k1
	v2 := 0x6c7967656e657261 ^ k0
	v3 := 0x7465646279746573 ^ k1

	round := func() {
		v0 += v1
		v1 = bits.RotateLeft64(v1, 13)
		v1 ^= v0
		v0 = bits.RotateLeft64(v0, 32)
		v2 += v3
		v3 = bits.RotateLeft64(v3, 16)
		v3 ^= v2
		v0 += v3
		v3 = bits.RotateLeft64(v3, 21)
		v3 ^= v0
		v2 += v1
		v1 = bits.RotateLeft64(v1, 17)
		v1 ^= v2
		v2 = bits.RotateLeft64(v2, 32)
	}

	b := uint64(len(data)) << 56
	for len(data) >= 8 {
		m := binary.LittleEndian.Uint64(data)
		v3 ^= m
		for r := 0; r < cRounds; r++ {
			round()
		}
		v0 ^= m
		data = data[8:]
	}
	for i, c := range data {
		b |= uint64(c) << (8 * uint(i))
	}
	v3 ^= b
	for r := 0; r < cRounds; r++ {
		round()
	}
	v0 ^= b

	v2 ^= 0xff
	for r := 0; r < dRounds; r++ {
		round()
	}
	return v0 ^ v1 ^ v2 ^ v3
}
