package verify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywheel/pywheel/internal/pyc"
	"github.com/pywheel/pywheel/internal/python"
)

const siteDir = "/usr/lib/python3.12/site-packages"

func testIdentity() python.Identity {
	return python.Identity{
		Version:  "3.12",
		CacheTag: "cpython-312",
		Magic:    3531,
		HashAlgo: pyc.SipHash13,
	}
}

func testConfig(destdir string, levels ...int) Config {
	return Config{
		DestDir:  destdir,
		SiteDirs: []string{siteDir},
		Levels:   levels,
		Identity: testIdentity(),
	}
}

// writeSource writes a source file under the site dir and returns its
// on-disk path.
func writeSource(t *testing.T, destdir, name, content string) string {
	t.Helper()
	path := filepath.Join(destdir, siteDir[1:], name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeCache writes a cache file for source at level, with a header
// matching the source's current state in the given mode.
func writeCache(t *testing.T, source string, level int, mode pyc.InvalidationMode) string {
	t.Helper()
	id := testIdentity()
	data, err := os.ReadFile(source)
	require.NoError(t, err)
	info, err := os.Stat(source)
	require.NoError(t, err)

	header := pyc.Header{Magic: id.Magic, Flags: pyc.FlagsFor(mode)}
	if mode == pyc.Timestamp {
		header.SourceMtime = uint32(info.ModTime().Unix())
		header.SourceSize = uint32(info.Size())
	} else {
		header.SourceHash = pyc.SourceHash(id.Magic, id.HashAlgo, data)
	}

	cache := pyc.CachePath(source, id.CacheTag, level)
	require.NoError(t, os.MkdirAll(filepath.Dir(cache), 0755))
	buf := pyc.EncodeHeader(header)
	require.NoError(t, os.WriteFile(cache, append(buf[:], "payload"...), 0644))
	return cache
}

func TestRun_Clean(t *testing.T) {
	destdir := t.TempDir()
	for _, name := range []string{"pkg/__init__.py", "pkg/util.py"} {
		src := writeSource(t, destdir, name, "x = 1\n")
		for _, level := range pyc.AllLevels {
			writeCache(t, src, level, pyc.Timestamp)
		}
	}

	report, err := Run(testConfig(destdir, 0, 1, 2))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 6, report.Checked)
}

func TestRun_Missing(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")
	writeCache(t, src, 0, pyc.Timestamp)

	report, err := Run(testConfig(destdir, 0, 1, 2))
	require.NoError(t, err)
	require.Len(t, report.Findings, 2)
	for _, f := range report.Findings {
		assert.Equal(t, MissingCache, f.Kind)
		assert.Equal(t, src, f.Source)
	}
}

func TestRun_Incompatible(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")

	// Header written by a different interpreter build.
	buf := pyc.EncodeHeader(pyc.Header{Magic: 3495})
	cache := pyc.CachePath(src, "cpython-312", 0)
	require.NoError(t, os.MkdirAll(filepath.Dir(cache), 0755))
	require.NoError(t, os.WriteFile(cache, buf[:], 0644))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, IncompatibleCache, report.Findings[0].Kind)
}

func TestRun_InvalidHeader(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")

	cache := pyc.CachePath(src, "cpython-312", 0)
	require.NoError(t, os.MkdirAll(filepath.Dir(cache), 0755))
	require.NoError(t, os.WriteFile(cache, []byte("short"), 0644))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, InvalidCache, report.Findings[0].Kind)
}

func TestRun_StaleHash(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")
	writeCache(t, src, 0, pyc.CheckedHash)

	// Same length, different content: only hash mode can see this if
	// the mtime is restored.
	info, err := os.Stat(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, []byte("y = 2\n"), 0644))
	require.NoError(t, os.Chtimes(src, info.ModTime(), info.ModTime()))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, StaleCache, report.Findings[0].Kind)
	assert.Equal(t, "hash", report.Findings[0].Reason)
}

func TestRun_UncheckedHashStillVerified(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")
	writeCache(t, src, 0, pyc.UncheckedHash)

	require.NoError(t, os.WriteFile(src, []byte("changed\n"), 0644))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "hash", report.Findings[0].Reason)
}

func TestRun_TimestampModeMissesContentOnlyChange(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")
	writeCache(t, src, 0, pyc.Timestamp)

	// Rewrite with identical size and restored mtime: timestamp mode
	// cannot detect this.
	info, err := os.Stat(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, []byte("y = 2\n"), 0644))
	require.NoError(t, os.Chtimes(src, info.ModTime(), info.ModTime()))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestRun_StaleTimestampAndSize(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")
	writeCache(t, src, 0, pyc.Timestamp)

	require.NoError(t, os.WriteFile(src, []byte("x = 1  # touched\n"), 0644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	require.Len(t, report.Findings, 2)
	assert.Equal(t, "timestamp", report.Findings[0].Reason)
	assert.Equal(t, "size", report.Findings[1].Reason)
}

func TestRun_Stray(t *testing.T) {
	destdir := t.TempDir()
	src := writeSource(t, destdir, "pkg/mod.py", "x = 1\n")
	writeCache(t, src, 0, pyc.Timestamp)

	stray := filepath.Join(filepath.Dir(src), "__pycache__", "ghost.cpython-312.pyc")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0644))

	report, err := Run(testConfig(destdir, 0))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, StrayCache, report.Findings[0].Kind)
	assert.Equal(t, stray, report.Findings[0].Cache)
	assert.Empty(t, report.Findings[0].Source)
}

func TestRun_EmptyTree(t *testing.T) {
	report, err := Run(testConfig(t.TempDir(), 0, 1, 2))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Zero(t, report.Checked)
}

func TestFindingLine(t *testing.T) {
	f := Finding{
		Kind:   StaleCache,
		Cache:  "/d/usr/lib/python3.12/site-packages/pkg/__pycache__/mod.cpython-312.pyc",
		Source: "/d/usr/lib/python3.12/site-packages/pkg/mod.py",
		Reason: "hash",
	}
	assert.Equal(t,
		"stale:/usr/lib/python3.12/site-packages/pkg/__pycache__/mod.cpython-312.pyc"+
			":/usr/lib/python3.12/site-packages/pkg/mod.py:hash",
		f.Line("/d"))

	stray := Finding{Kind: StrayCache, Cache: "/d/x.pyc"}
	assert.Equal(t, "stray:/x.pyc", stray.Line("/d"))
}
