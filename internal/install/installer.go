// Package install writes routed wheel entries into a destination tree,
// enforcing the overwrite policy and optionally deduplicating content
// against a reference install via symlinks.
package install

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pywheel/pywheel/internal/scheme"
	"github.com/pywheel/pywheel/internal/wheel"
)

// DestinationExistsError reports a destination path that already
// exists when --overwrite is not in effect. The install aborts.
type DestinationExistsError struct {
	Path string
}

func (e *DestinationExistsError) Error() string {
	return fmt.Sprintf("destination %s already exists (pass --overwrite to replace)", e.Path)
}

// Options configures one install.
type Options struct {
	// DestDir is the staging root prepended to all target paths.
	DestDir string

	Router scheme.Router
	Target scheme.Target

	// Overwrite replaces existing destination files atomically instead
	// of failing.
	Overwrite bool

	// SymlinkTo is an optional reference destdir containing a previous
	// install of identical content; matching files are symlinked to it
	// instead of copied.
	SymlinkTo string
}

// Result reports what an install wrote.
type Result struct {
	// Installed lists every written path (including DestDir), in
	// install order.
	Installed []string

	// Sources lists installed .py files under the site directories
	// (including DestDir), the compiler's input set.
	Sources []string
}

// Count returns the number of installed files.
func (r *Result) Count() int { return len(r.Installed) }

// Install writes every entry of the archive through the router, then
// generates the scripts declared in entry_points.txt. The archive's
// RECORD is not copied verbatim: a fresh manifest covering the
// actually-written content is generated in its place.
func Install(a *wheel.Archive, opts Options) (*Result, error) {
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}
	tmp := newTmpRegistry()
	defer tmp.cleanup()

	recordByPath := make(map[string]wheel.RecordEntry, len(a.Record()))
	for _, e := range a.Record() {
		recordByPath[e.Path] = e
	}

	recordName := a.DistInfoDir() + "/RECORD"
	interp := opts.Target.EffectiveInterpreter()

	var (
		result Result
		record []wheel.RecordEntry
	)
	for _, entry := range a.Entries() {
		if entry.Path == recordName {
			continue // regenerated below
		}
		routed, err := opts.Router.Route(entry.Path)
		if err != nil {
			return nil, err
		}

		content, err := readEntry(entry)
		if err != nil {
			return nil, err
		}
		if rec, ok := recordByPath[entry.Path]; ok && !rec.Matches(content) {
			slog.Warn("archive content does not match RECORD", "path", entry.Path)
		}

		if routed.Category == scheme.Scripts {
			content = scheme.RewriteShebang(content, interp)
		}

		dest := filepath.Join(opts.DestDir, routed.Path)
		mode := fileMode(entry.Mode, routed.Category)
		if err := writeDest(dest, routed.Path, content, mode, opts, tmp); err != nil {
			return nil, err
		}

		result.Installed = append(result.Installed, dest)
		if siteCategory(routed.Category) && strings.HasSuffix(dest, ".py") {
			result.Sources = append(result.Sources, dest)
		}
		record = append(record, wheel.RecordEntry{
			Path:   routed.RecordPath,
			Algo:   "sha256",
			Digest: wheel.Digest(content),
			Size:   int64(len(content)),
		})
	}

	eps, err := a.EntryPoints()
	if err != nil {
		return nil, err
	}
	for _, ep := range eps {
		content := scheme.Script(interp, ep.Module, ep.Attr)
		routed := opts.Router.RouteScript(ep.Name)
		dest := filepath.Join(opts.DestDir, routed.Path)
		if err := writeDest(dest, routed.Path, content, 0755, opts, tmp); err != nil {
			return nil, err
		}
		slog.Debug("generated entry point script",
			"script", ep.Name, "object", ep.Module+":"+ep.Attr)
		result.Installed = append(result.Installed, dest)
		record = append(record, wheel.RecordEntry{
			Path:   routed.RecordPath,
			Algo:   "sha256",
			Digest: wheel.Digest(content),
			Size:   int64(len(content)),
		})
	}

	recordContent, err := renderRecord(record, recordName)
	if err != nil {
		return nil, err
	}
	routed, err := opts.Router.Route(recordName)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(opts.DestDir, routed.Path)
	if err := writeDest(dest, routed.Path, recordContent, 0644, opts, tmp); err != nil {
		return nil, err
	}
	result.Installed = append(result.Installed, dest)

	slog.Info("installed wheel",
		"name", a.Name(), "version", a.Version(),
		"destdir", opts.DestDir, "files", result.Count())
	return &result, nil
}

func readEntry(entry wheel.Entry) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	return data, nil
}

func renderRecord(entries []wheel.RecordEntry, recordName string) ([]byte, error) {
	entries = append(entries, wheel.RecordEntry{Path: recordName, Size: -1})
	var buf strings.Builder
	if err := wheel.WriteRecord(&buf, entries); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func siteCategory(c scheme.Category) bool {
	return c == scheme.Purelib || c == scheme.Platlib
}

// fileMode derives the on-disk permissions from the archive mode.
// Scripts get read bits mirrored into execute bits, so a 0644 entry
// installs as 0755.
func fileMode(m fs.FileMode, c scheme.Category) fs.FileMode {
	perm := m.Perm()
	if perm == 0 {
		perm = 0644
	}
	if c == scheme.Scripts || perm&0100 != 0 {
		perm |= (perm & 0444) >> 2
	}
	return perm
}

// writeDest lands content at dest, honoring the overwrite policy and
// the symlink-to dedup mode. targetPath is the destdir-relative target
// path used to locate the reference copy.
func writeDest(dest, targetPath string, content []byte, mode fs.FileMode, opts Options, tmp *tmpRegistry) error {
	if _, err := os.Lstat(dest); err == nil {
		if !opts.Overwrite {
			return &DestinationExistsError{Path: dest}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", dest, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", dest, err)
	}

	if opts.SymlinkTo != "" {
		ref := filepath.Join(opts.SymlinkTo, targetPath)
		ok, err := symlinkDest(dest, ref, content, tmp)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// Reference missing or diverged: fall through to a real copy.
		slog.Debug("reference copy unusable, writing file", "dest", dest, "ref", ref)
	}

	return atomicWrite(dest, content, mode, tmp)
}

// symlinkDest links dest to the resolved real file behind ref when the
// reference content is byte-identical to what would be written. The
// link is created at a temporary name and renamed into place, so an
// existing destination is replaced without a window where no entry is
// present. Returns false when the reference cannot serve.
func symlinkDest(dest, ref string, content []byte, tmp *tmpRegistry) (bool, error) {
	refContent, err := os.ReadFile(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read reference %s: %w", ref, err)
	}
	if string(refContent) != string(content) {
		return false, nil
	}

	target, err := ResolveChain(ref)
	if err != nil {
		return false, err
	}

	tmpPath := tmpName(dest)
	tmp.register(tmpPath)
	defer func() {
		tmp.deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	if err := os.Symlink(target, tmpPath); err != nil {
		return false, fmt.Errorf("symlink %s -> %s: %w", dest, target, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return false, fmt.Errorf("rename %s -> %s: %w", tmpPath, dest, err)
	}
	return true, nil
}

func tmpName(dest string) string {
	return filepath.Join(filepath.Dir(dest),
		fmt.Sprintf(".%s.%s.pywheel-tmp", filepath.Base(dest), uuid.New().String()[:8]))
}

// atomicWrite writes content to a temporary file in the destination
// directory and renames it into place, so concurrent readers see
// either the old or the complete new file.
func atomicWrite(dest string, content []byte, mode fs.FileMode, tmp *tmpRegistry) error {
	tmpPath := tmpName(dest)

	tmp.register(tmpPath)
	defer func() {
		tmp.deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write tmp %s: %w", tmpPath, err)
	}
	// The umask may have masked bits at open time; restore them.
	if err := f.Chmod(mode); err != nil {
		f.Close()
		return fmt.Errorf("chmod tmp %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, dest, err)
	}
	return nil
}
