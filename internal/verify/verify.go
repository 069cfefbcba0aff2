// Package verify checks an installed tree's bytecode caches against
// their sources without mutating anything: every source must have a
// cache file per requested level, every cache header must match the
// target interpreter, and the recorded invalidation data must agree
// with the live source.
package verify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pywheel/pywheel/internal/pyc"
	"github.com/pywheel/pywheel/internal/python"
)

// Kind classifies a verification finding.
type Kind int

const (
	// MissingCache: no cache file exists for a source/level pair.
	MissingCache Kind = iota
	// InvalidCache: the cache header is unparseable.
	InvalidCache
	// IncompatibleCache: the magic number belongs to a different
	// interpreter build.
	IncompatibleCache
	// StaleCache: the header no longer matches the source.
	StaleCache
	// StrayCache: a cache file with no corresponding source.
	StrayCache
)

func (k Kind) String() string {
	switch k {
	case MissingCache:
		return "missing"
	case InvalidCache:
		return "invalid"
	case IncompatibleCache:
		return "incompatible"
	case StaleCache:
		return "stale"
	case StrayCache:
		return "stray"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Finding is one verification failure.
type Finding struct {
	Kind   Kind
	Cache  string
	Source string // empty for stray caches
	Reason string // hash, timestamp or size for stale caches
}

// Line renders the finding for output, with the destdir stripped so
// paths read as target-system paths.
func (f Finding) Line(destDir string) string {
	parts := []string{f.Kind.String(), stripDest(destDir, f.Cache)}
	if f.Source != "" {
		parts = append(parts, stripDest(destDir, f.Source))
	}
	if f.Reason != "" {
		parts = append(parts, f.Reason)
	}
	return strings.Join(parts, ":")
}

func stripDest(destDir, path string) string {
	rel, err := filepath.Rel(destDir, path)
	if err != nil {
		return path
	}
	return "/" + filepath.ToSlash(rel)
}

// Config controls a verification pass.
type Config struct {
	// DestDir is the staging root the tree lives under.
	DestDir string

	// SiteDirs are the target-system site directories to walk.
	SiteDirs []string

	// Levels are the optimization levels every source must be
	// compiled at.
	Levels []int

	Identity python.Identity
}

// Report is the outcome of a verification pass.
type Report struct {
	// Checked counts source/level pairs examined.
	Checked int

	Findings []Finding
}

// OK reports whether the tree verified cleanly.
func (r Report) OK() bool { return len(r.Findings) == 0 }

// Run walks the configured site directories and verifies every cache
// file. It is read-only; all failures are accumulated in the report.
func Run(cfg Config) (Report, error) {
	var report Report
	for _, siteDir := range cfg.SiteDirs {
		top := filepath.Join(cfg.DestDir, strings.TrimPrefix(siteDir, "/"))
		if info, err := os.Stat(top); err != nil || !info.IsDir() {
			continue
		}
		if err := verifyTree(cfg, top, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func verifyTree(cfg Config, top string, report *Report) error {
	var pyFiles []string
	pycFiles := map[string]struct{}{}

	err := filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(path, ".py"):
			pyFiles = append(pyFiles, path)
		case strings.HasSuffix(path, ".pyc"), strings.HasSuffix(path, ".pyo"):
			pycFiles[path] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", top, err)
	}
	slices.Sort(pyFiles)

	for _, py := range pyFiles {
		for _, level := range cfg.Levels {
			report.Checked++
			cache := pyc.CachePath(py, cfg.Identity.CacheTag, level)
			if _, ok := pycFiles[cache]; !ok {
				report.Findings = append(report.Findings, Finding{
					Kind: MissingCache, Cache: cache, Source: py,
				})
				continue
			}
			delete(pycFiles, cache)
			report.Findings = append(report.Findings, verifyCache(cfg, cache, py)...)
		}
	}

	strays := make([]string, 0, len(pycFiles))
	for p := range pycFiles {
		strays = append(strays, p)
	}
	slices.Sort(strays)
	for _, p := range strays {
		report.Findings = append(report.Findings, Finding{Kind: StrayCache, Cache: p})
	}
	return nil
}

func verifyCache(cfg Config, cache, source string) []Finding {
	f, err := os.Open(cache)
	if err != nil {
		return []Finding{{Kind: InvalidCache, Cache: cache, Source: source}}
	}
	header, err := pyc.ParseHeader(f, cfg.Identity.Magic)
	f.Close()
	if err != nil {
		kind := InvalidCache
		if errors.Is(err, pyc.ErrBadMagic) {
			kind = IncompatibleCache
		}
		return []Finding{{Kind: kind, Cache: cache, Source: source}}
	}

	if header.HashBased() {
		// Even an unchecked-hash cache is validated here: in that mode
		// the interpreter trusts the installer, so the installer's
		// verifier is the only check there is.
		data, err := os.ReadFile(source)
		if err != nil {
			return []Finding{{Kind: StaleCache, Cache: cache, Source: source, Reason: "hash"}}
		}
		want := pyc.SourceHash(cfg.Identity.Magic, cfg.Identity.HashAlgo, data)
		if want != header.SourceHash {
			return []Finding{{Kind: StaleCache, Cache: cache, Source: source, Reason: "hash"}}
		}
		return nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return []Finding{{Kind: StaleCache, Cache: cache, Source: source, Reason: "timestamp"}}
	}
	var findings []Finding
	if uint32(info.ModTime().Unix()) != header.SourceMtime {
		findings = append(findings, Finding{
			Kind: StaleCache, Cache: cache, Source: source, Reason: "timestamp",
		})
	}
	if uint32(info.Size()) != header.SourceSize {
		findings = append(findings, Finding{
			Kind: StaleCache, Cache: cache, Source: source, Reason: "size",
		})
	}
	return findings
}
