package compile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/pywheel/pywheel/internal/install"
)

// Dedup replaces byte-identical cache files across optimization levels
// with symlinks. For each source, files are grouped by content digest;
// the lowest level in a group is retained as the real file and the
// rest become single-hop symlinks to it. Link targets are relative, so
// a staged destdir can be merged to the real root without the links
// dangling. Returns the number of links created.
func Dedup(compiled map[string][]string) (int, error) {
	links := 0
	for source, caches := range compiled {
		if len(caches) < 2 {
			continue
		}

		// caches is ordered by level, so the first member of each
		// digest group is the lowest level: the retained canonical.
		canonical := map[string]string{}
		for _, cache := range caches {
			digest, err := hashFile(cache)
			if err != nil {
				return links, fmt.Errorf("dedup %s: %w", source, err)
			}
			keep, ok := canonical[digest]
			if !ok {
				canonical[digest] = cache
				continue
			}

			target, err := install.ResolveChain(keep)
			if err != nil {
				return links, fmt.Errorf("dedup %s: %w", source, err)
			}
			rel, err := filepath.Rel(filepath.Dir(cache), target)
			if err != nil {
				return links, fmt.Errorf("dedup %s: %w", source, err)
			}
			if err := os.Remove(cache); err != nil {
				return links, fmt.Errorf("dedup %s: %w", source, err)
			}
			if err := os.Symlink(rel, cache); err != nil {
				return links, fmt.Errorf("dedup %s: %w", source, err)
			}
			slog.Debug("deduplicated cache file", "link", cache, "target", rel)
			links++
		}
	}
	return links, nil
}

// hashFile computes the BLAKE3 digest of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
