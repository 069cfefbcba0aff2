// Package wheel provides read-only access to wheel archives: entry
// enumeration in archive order, the dist-info metadata needed for
// routing, and the RECORD manifest.
package wheel

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
)

// ErrArchive marks a wheel that is corrupt or structurally invalid.
var ErrArchive = errors.New("invalid wheel archive")

// UnsafeEntryError reports an entry whose path would escape the
// extraction root. The whole archive is rejected.
type UnsafeEntryError struct {
	Path string
}

func (e *UnsafeEntryError) Error() string {
	return fmt.Sprintf("unsafe archive entry path %q", e.Path)
}

// Entry is one member of the archive. Content is read lazily via Open.
type Entry struct {
	// Path is the slash-separated archive path.
	Path string

	// Mode is the recorded file mode.
	Mode fs.FileMode

	// Size is the uncompressed size.
	Size int64

	file *zip.File
}

// Open returns a reader over the entry's content.
func (e Entry) Open() (io.ReadCloser, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArchive, e.Path, err)
	}
	return rc, nil
}

// Archive is an open wheel.
type Archive struct {
	rc *zip.ReadCloser

	name          string
	version       string
	distInfoDir   string
	rootIsPurelib bool
	record        []RecordEntry
	entries       []Entry
}

// Open opens a wheel archive and validates its structure: every entry
// path must stay inside the extraction root, and the dist-info
// directory must carry parseable WHEEL and RECORD files. Entry content
// is not read here.
func Open(wheelPath string) (*Archive, error) {
	rc, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchive, wheelPath, err)
	}
	// Wheels are deflate-compressed; route decompression through
	// klauspost's flate.
	rc.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	a := &Archive{rc: rc}
	if err := a.init(); err != nil {
		rc.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the underlying zip reader.
func (a *Archive) Close() error { return a.rc.Close() }

// Name is the distribution name from the dist-info directory.
func (a *Archive) Name() string { return a.name }

// Version is the distribution version from the dist-info directory.
func (a *Archive) Version() string { return a.version }

// DistInfoDir is the "<name>-<version>.dist-info" directory name.
func (a *Archive) DistInfoDir() string { return a.distInfoDir }

// RootIsPurelib reports the WHEEL Root-Is-Purelib flag.
func (a *Archive) RootIsPurelib() bool { return a.rootIsPurelib }

// Record returns the parsed RECORD manifest.
func (a *Archive) Record() []RecordEntry { return a.record }

// Entries returns file entries in archive order. Directory entries are
// omitted; the installer recreates directories as needed.
func (a *Archive) Entries() []Entry { return a.entries }

func (a *Archive) init() error {
	for _, f := range a.rc.File {
		if !safePath(f.Name) {
			return &UnsafeEntryError{Path: f.Name}
		}
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		a.entries = append(a.entries, Entry{
			Path: path.Clean(f.Name),
			Mode: f.Mode(),
			Size: int64(f.UncompressedSize64),
			file: f,
		})
	}

	if err := a.findDistInfo(); err != nil {
		return err
	}
	if err := a.parseWheelMetadata(); err != nil {
		return err
	}
	return a.parseRecord()
}

// safePath reports whether a zip member path is confined to the
// extraction root. Backslashes are rejected outright: a well-formed
// wheel only uses forward slashes.
func safePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

func (a *Archive) findDistInfo() error {
	for _, e := range a.entries {
		dir, rest, ok := strings.Cut(e.Path, "/")
		if !ok || rest != "WHEEL" || !strings.HasSuffix(dir, ".dist-info") {
			continue
		}
		if a.distInfoDir != "" && a.distInfoDir != dir {
			return fmt.Errorf("%w: multiple dist-info directories (%s, %s)",
				ErrArchive, a.distInfoDir, dir)
		}
		a.distInfoDir = dir
	}
	if a.distInfoDir == "" {
		return fmt.Errorf("%w: no dist-info/WHEEL entry", ErrArchive)
	}

	stem := strings.TrimSuffix(a.distInfoDir, ".dist-info")
	name, version, ok := strings.Cut(stem, "-")
	if !ok || name == "" || version == "" {
		return fmt.Errorf("%w: malformed dist-info directory %q", ErrArchive, a.distInfoDir)
	}
	a.name = name
	a.version = version
	return nil
}

func (a *Archive) lookup(entryPath string) (Entry, bool) {
	for _, e := range a.entries {
		if e.Path == entryPath {
			return e, true
		}
	}
	return Entry{}, false
}

func (a *Archive) open(entryPath string) (io.ReadCloser, error) {
	e, ok := a.lookup(entryPath)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrArchive, entryPath)
	}
	return e.Open()
}

func (a *Archive) parseWheelMetadata() error {
	rc, err := a.open(a.distInfoDir + "/WHEEL")
	if err != nil {
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Wheel-Version":
			major, _, _ := strings.Cut(value, ".")
			if major != "1" {
				return fmt.Errorf("%w: unsupported Wheel-Version %s", ErrArchive, value)
			}
		case "Root-Is-Purelib":
			a.rootIsPurelib = strings.EqualFold(value, "true")
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: read WHEEL: %v", ErrArchive, err)
	}
	return nil
}

func (a *Archive) parseRecord() error {
	rc, err := a.open(a.distInfoDir + "/RECORD")
	if err != nil {
		return err
	}
	defer rc.Close()

	a.record, err = ParseRecord(rc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return nil
}
