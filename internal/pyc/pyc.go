// Package pyc reads and writes CPython bytecode cache files at the
// header level: the 16-byte PEP 552 header, the __pycache__ naming
// convention, and the keyed source hash used for hash-based
// invalidation. It never touches the marshalled code object that
// follows the header.
package pyc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// HeaderSize is the fixed size of a PEP 552 header: 4-byte magic,
// 4-byte flags, then either mtime+size or an 8-byte source hash.
const HeaderSize = 16

// Flag bits in the header. All other bits must be zero.
const (
	flagHashInvalidation = 0x1
	flagCheckedSource    = 0x2
)

// InvalidationMode selects how the interpreter decides whether a cache
// file is stale.
type InvalidationMode int

const (
	// Timestamp records the source mtime and size.
	Timestamp InvalidationMode = iota
	// CheckedHash records the source hash; the interpreter re-checks it.
	CheckedHash
	// UncheckedHash records the source hash but the interpreter trusts
	// the cache unconditionally. The installing tool is then the only
	// party responsible for keeping the hash correct.
	UncheckedHash
)

// ParseInvalidationMode parses a --pyc-mode flag value.
func ParseInvalidationMode(s string) (InvalidationMode, error) {
	switch s {
	case "timestamp":
		return Timestamp, nil
	case "checked-hash":
		return CheckedHash, nil
	case "unchecked-hash":
		return UncheckedHash, nil
	}
	return 0, fmt.Errorf("invalid pyc invalidation mode %q", s)
}

// PyCompileName is the py_compile.PycInvalidationMode member name for m.
func (m InvalidationMode) PyCompileName() string {
	switch m {
	case CheckedHash:
		return "CHECKED_HASH"
	case UncheckedHash:
		return "UNCHECKED_HASH"
	default:
		return "TIMESTAMP"
	}
}

// Header is a decoded PEP 552 cache file header.
type Header struct {
	Magic uint16
	Flags uint32

	// Timestamp invalidation fields (Flags bit 0 clear).
	SourceMtime uint32
	SourceSize  uint32

	// Hash invalidation field (Flags bit 0 set).
	SourceHash [8]byte
}

// HashBased reports whether the header uses hash invalidation.
func (h Header) HashBased() bool { return h.Flags&flagHashInvalidation != 0 }

// CheckedSource reports whether the interpreter validates the hash at
// import time.
func (h Header) CheckedSource() bool { return h.Flags&flagCheckedSource != 0 }

// Header parse errors.
var (
	ErrHeaderShort = errors.New("pyc header truncated")
	ErrBadMagic    = errors.New("pyc magic mismatch")
	ErrBadFlags    = errors.New("unexpected pyc header flag bits")
)

// ParseHeader reads and validates a cache file header against the
// expected interpreter magic.
func ParseHeader(r io.Reader, magic uint16) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, ErrHeaderShort
	}

	got := binary.LittleEndian.Uint16(buf[0:2])
	if buf[2] != '\r' || buf[3] != '\n' {
		return Header{}, fmt.Errorf("%w: bad magic trailer", ErrBadMagic)
	}
	if got != magic {
		return Header{}, fmt.Errorf("%w: have %d, want %d", ErrBadMagic, got, magic)
	}

	h := Header{
		Magic: got,
		Flags: binary.LittleEndian.Uint32(buf[4:8]),
	}
	if h.Flags&^uint32(flagHashInvalidation|flagCheckedSource) != 0 {
		return Header{}, fmt.Errorf("%w: 0x%x", ErrBadFlags, h.Flags)
	}
	if h.CheckedSource() && !h.HashBased() {
		return Header{}, fmt.Errorf("%w: checked_source without hash invalidation", ErrBadFlags)
	}

	if h.HashBased() {
		copy(h.SourceHash[:], buf[8:16])
	} else {
		h.SourceMtime = binary.LittleEndian.Uint32(buf[8:12])
		h.SourceSize = binary.LittleEndian.Uint32(buf[12:16])
	}
	return h, nil
}

// EncodeHeader serializes h. The Flags field is derived from which
// invalidation fields are meaningful, so callers set either
// SourceMtime/SourceSize or SourceHash plus the mode.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], h.Magic)
	buf[2] = '\r'
	buf[3] = '\n'
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	if h.HashBased() {
		copy(buf[8:16], h.SourceHash[:])
	} else {
		binary.LittleEndian.PutUint32(buf[8:12], h.SourceMtime)
		binary.LittleEndian.PutUint32(buf[12:16], h.SourceSize)
	}
	return buf
}

// FlagsFor returns the header flags for an invalidation mode.
func FlagsFor(mode InvalidationMode) uint32 {
	switch mode {
	case CheckedHash:
		return flagHashInvalidation | flagCheckedSource
	case UncheckedHash:
		return flagHashInvalidation
	default:
		return 0
	}
}

// CachePath returns the cache file path for a source file, e.g.
// pkg/mod.py at level 1 under tag cpython-312 becomes
// pkg/__pycache__/mod.cpython-312.opt-1.pyc. Level 0 carries no opt
// suffix, matching importlib.util.cache_from_source.
func CachePath(source, cacheTag string, level int) string {
	dir, base := filepath.Split(source)
	stem := strings.TrimSuffix(base, ".py")
	name := stem + "." + cacheTag
	if level > 0 {
		name += ".opt-" + strconv.Itoa(level)
	}
	return filepath.Join(dir, "__pycache__", name+".pyc")
}

// AllLevels is the full set of known optimization levels.
var AllLevels = []int{0, 1, 2}

// ParseLevels parses a comma-separated --optimize value. The word
// "all" anywhere in the list selects every known level.
func ParseLevels(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if slices.Contains(parts, "all") {
		return slices.Clone(AllLevels), nil
	}
	var levels []int
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || !slices.Contains(AllLevels, n) {
			return nil, fmt.Errorf("invalid optimization level %q", p)
		}
		if !slices.Contains(levels, n) {
			levels = append(levels, n)
		}
	}
	slices.Sort(levels)
	return levels, nil
}
