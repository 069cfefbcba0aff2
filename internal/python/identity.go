// Package python models the target interpreter as injected
// configuration: a probed Identity value that the scheme, compile, and
// verify packages consume instead of asking the host environment.
package python

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pywheel/pywheel/internal/pyc"
)

// Identity describes one target interpreter build.
type Identity struct {
	// Executable is the interpreter path as it should appear on the
	// target system (before any prefix rewriting).
	Executable string

	// Version is the "major.minor" feature release, e.g. "3.12".
	Version string

	// CacheTag is the __pycache__ tag, e.g. "cpython-312".
	CacheTag string

	// Magic is the 16-bit bytecode magic number for this build.
	Magic uint16

	// HashAlgo is the keyed hash this build uses for source hashing.
	HashAlgo pyc.HashAlgorithm

	// Paths are the sysconfig-style install paths for base == platbase
	// == "/usr" (re-prefixed by the scheme package).
	Paths SchemePaths
}

// SchemePaths carries the interpreter-reported install locations for
// the reference /usr prefix.
type SchemePaths struct {
	Purelib string `json:"purelib"`
	Platlib string `json:"platlib"`
	Scripts string `json:"scripts"`
	Include string `json:"include"`
	Data    string `json:"data"`
}

// VersionTuple splits Version into numeric major and minor parts.
func (id Identity) VersionTuple() (major, minor int, err error) {
	maj, min, ok := strings.Cut(id.Version, ".")
	if !ok {
		return 0, 0, fmt.Errorf("malformed interpreter version %q", id.Version)
	}
	if major, err = strconv.Atoi(maj); err != nil {
		return 0, 0, fmt.Errorf("malformed interpreter version %q", id.Version)
	}
	if minor, err = strconv.Atoi(min); err != nil {
		return 0, 0, fmt.Errorf("malformed interpreter version %q", id.Version)
	}
	return major, minor, nil
}

// HashAlgoForVersion returns the source-hash algorithm CPython uses by
// default for a feature release: SipHash-1-3 from 3.11 on, SipHash-2-4
// before that.
func HashAlgoForVersion(major, minor int) pyc.HashAlgorithm {
	if major > 3 || (major == 3 && minor >= 11) {
		return pyc.SipHash13
	}
	return pyc.SipHash24
}
