// Package scheme maps wheel entries onto the install layout: category
// classification, destination paths under a prefix, and interpreter
// path rewriting for scripts.
package scheme

import (
	"fmt"
	"path"
	"strings"

	"github.com/pywheel/pywheel/internal/python"
)

// Category is a wheel install category.
type Category int

const (
	Purelib Category = iota
	Platlib
	Headers
	Scripts
	Data
	DistInfo
)

func (c Category) String() string {
	switch c {
	case Purelib:
		return "purelib"
	case Platlib:
		return "platlib"
	case Headers:
		return "headers"
	case Scripts:
		return "scripts"
	case Data:
		return "data"
	case DistInfo:
		return "dist-info"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Scheme holds the absolute install roots for one prefix. Paths are
// target-system paths; the installer prepends the destdir.
type Scheme struct {
	Purelib string
	Platlib string
	Headers string
	Scripts string
	Data    string
}

// DefaultPrefix is used when no --prefix is given.
const DefaultPrefix = "/usr"

// New computes the scheme for a prefix from the probed interpreter
// paths. The probe reports paths for the reference /usr prefix;
// re-prefixing is a textual substitution so the result is usable for
// cross builds. Headers gets the distribution name appended, matching
// the include/pythonX.Y/<dist> convention.
func New(id python.Identity, prefix, distName string) Scheme {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	paths := id.Paths
	if paths.Purelib == "" {
		paths = fallbackPaths(id)
	}
	return Scheme{
		Purelib: reprefix(paths.Purelib, prefix),
		Platlib: reprefix(paths.Platlib, prefix),
		Headers: path.Join(reprefix(paths.Include, prefix), distName),
		Scripts: reprefix(paths.Scripts, prefix),
		Data:    reprefix(paths.Data, prefix),
	}
}

// fallbackPaths is the posix_prefix layout, for identities constructed
// without a live probe.
func fallbackPaths(id python.Identity) python.SchemePaths {
	lib := "/usr/lib/python" + id.Version
	return python.SchemePaths{
		Purelib: lib + "/site-packages",
		Platlib: lib + "/site-packages",
		Scripts: "/usr/bin",
		Include: "/usr/include/python" + id.Version,
		Data:    "/usr",
	}
}

func reprefix(p, prefix string) string {
	rest := strings.TrimPrefix(p, DefaultPrefix)
	if rest == p {
		// Path did not start with /usr; treat it as prefix-relative.
		return path.Join(prefix, strings.TrimPrefix(p, "/"))
	}
	return path.Join(prefix, rest)
}

// Root returns the site directory wheel root entries install into.
func (s Scheme) Root(rootIsPurelib bool) string {
	if rootIsPurelib {
		return s.Purelib
	}
	return s.Platlib
}

// Dir returns the install root for a category. DistInfo entries land
// in the wheel root site directory.
func (s Scheme) Dir(c Category, rootIsPurelib bool) string {
	switch c {
	case Purelib:
		return s.Purelib
	case Platlib:
		return s.Platlib
	case Headers:
		return s.Headers
	case Scripts:
		return s.Scripts
	case Data:
		return s.Data
	default:
		return s.Root(rootIsPurelib)
	}
}

// SiteDirs returns the unique site directories of the scheme.
func (s Scheme) SiteDirs() []string {
	if s.Purelib == s.Platlib {
		return []string{s.Purelib}
	}
	return []string{s.Purelib, s.Platlib}
}

// Routed is the destination of one archive entry.
type Routed struct {
	Category Category

	// Path is the absolute target path (without destdir).
	Path string

	// RecordPath is the path as it appears in RECORD: relative to the
	// root site directory.
	RecordPath string
}

// Router classifies archive entries.
type Router struct {
	Scheme        Scheme
	DistInfoDir   string // e.g. "pkg-1.0.dist-info"
	DataDir       string // e.g. "pkg-1.0.data"
	RootIsPurelib bool
}

// NewRouter builds a router for one wheel.
func NewRouter(s Scheme, distInfoDir string, rootIsPurelib bool) Router {
	return Router{
		Scheme:        s,
		DistInfoDir:   distInfoDir,
		DataDir:       strings.TrimSuffix(distInfoDir, ".dist-info") + ".data",
		RootIsPurelib: rootIsPurelib,
	}
}

var dataCategories = map[string]Category{
	"purelib": Purelib,
	"platlib": Platlib,
	"headers": Headers,
	"scripts": Scripts,
	"data":    Data,
}

// Route classifies an entry path and computes its destination.
func (r Router) Route(entryPath string) (Routed, error) {
	if rest, ok := strings.CutPrefix(entryPath, r.DataDir+"/"); ok {
		catName, sub, ok := strings.Cut(rest, "/")
		if !ok {
			return Routed{}, fmt.Errorf("data entry %q has no category directory", entryPath)
		}
		cat, known := dataCategories[catName]
		if !known {
			return Routed{}, fmt.Errorf("unknown data category %q in %q", catName, entryPath)
		}
		dest := path.Join(r.Scheme.Dir(cat, r.RootIsPurelib), sub)
		return Routed{
			Category:   cat,
			Path:       dest,
			RecordPath: relativeTo(r.Scheme.Root(r.RootIsPurelib), dest),
		}, nil
	}

	cat := Purelib
	if !r.RootIsPurelib {
		cat = Platlib
	}
	if entryPath == r.DistInfoDir || strings.HasPrefix(entryPath, r.DistInfoDir+"/") {
		cat = DistInfo
	}
	return Routed{
		Category:   cat,
		Path:       path.Join(r.Scheme.Root(r.RootIsPurelib), entryPath),
		RecordPath: entryPath,
	}, nil
}

// relativeTo expresses target relative to base using lexical ../ hops,
// the way RECORD references files outside the site directory.
func relativeTo(base, target string) string {
	baseParts := strings.Split(strings.Trim(base, "/"), "/")
	targetParts := strings.Split(strings.Trim(target, "/"), "/")

	common := 0
	for common < len(baseParts) && common < len(targetParts) &&
		baseParts[common] == targetParts[common] {
		common++
	}
	var parts []string
	for i := common; i < len(baseParts); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[common:]...)
	return strings.Join(parts, "/")
}
