package install

import (
	"fmt"
	"os"
	"path/filepath"
)

// maxHops bounds symlink chain resolution. Well-formed trees produced
// by this tool have chains of length ≤ 1; the bound exists to detect
// cycles and runaway chains left by other tools.
const maxHops = 16

// SymlinkCycleError reports a symlink chain that loops back on itself.
type SymlinkCycleError struct {
	Path string
}

func (e *SymlinkCycleError) Error() string {
	return fmt.Sprintf("symlink cycle at %s", e.Path)
}

// SymlinkTooDeepError reports a chain longer than the resolution bound.
type SymlinkTooDeepError struct {
	Path string
}

func (e *SymlinkTooDeepError) Error() string {
	return fmt.Sprintf("symlink chain at %s exceeds %d hops", e.Path, maxHops)
}

// ResolveChain follows symlink hops from path and returns the final
// non-symlink path, absolute. Callers link against the result so that
// every symlink created by this tool points directly at a real file,
// compressing any pre-existing chain to a single hop.
func ResolveChain(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	seen := map[string]struct{}{}
	for hops := 0; ; hops++ {
		info, err := os.Lstat(current)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}
		if _, ok := seen[current]; ok {
			return "", &SymlinkCycleError{Path: path}
		}
		seen[current] = struct{}{}
		if hops >= maxHops {
			return "", &SymlinkTooDeepError{Path: path}
		}

		target, err := os.Readlink(current)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = target
	}
}
