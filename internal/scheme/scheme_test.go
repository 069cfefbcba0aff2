package scheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywheel/pywheel/internal/python"
)

func testIdentity() python.Identity {
	return python.Identity{
		Executable: "/usr/bin/python3.12",
		Version:    "3.12",
		CacheTag:   "cpython-312",
		Magic:      3531,
	}
}

func TestNew_FallbackLayout(t *testing.T) {
	s := New(testIdentity(), "/usr", "pkg")

	assert.Equal(t, "/usr/lib/python3.12/site-packages", s.Purelib)
	assert.Equal(t, "/usr/lib/python3.12/site-packages", s.Platlib)
	assert.Equal(t, "/usr/include/python3.12/pkg", s.Headers)
	assert.Equal(t, "/usr/bin", s.Scripts)
	assert.Equal(t, "/usr", s.Data)
	assert.Equal(t, []string{"/usr/lib/python3.12/site-packages"}, s.SiteDirs())
}

func TestNew_Reprefix(t *testing.T) {
	id := testIdentity()
	id.Paths = python.SchemePaths{
		Purelib: "/usr/lib/python3.12/site-packages",
		Platlib: "/usr/lib64/python3.12/site-packages",
		Scripts: "/usr/bin",
		Include: "/usr/include/python3.12",
		Data:    "/usr",
	}
	s := New(id, "/opt/py", "pkg")

	assert.Equal(t, "/opt/py/lib/python3.12/site-packages", s.Purelib)
	assert.Equal(t, "/opt/py/lib64/python3.12/site-packages", s.Platlib)
	assert.Equal(t, "/opt/py/bin", s.Scripts)
	assert.Equal(t, "/opt/py/include/python3.12/pkg", s.Headers)
	assert.Equal(t, "/opt/py", s.Data)
	assert.Len(t, s.SiteDirs(), 2)
}

func TestNew_DefaultPrefix(t *testing.T) {
	s := New(testIdentity(), "", "pkg")
	assert.Equal(t, "/usr/bin", s.Scripts)
}

func TestRoute(t *testing.T) {
	s := New(testIdentity(), "/usr", "pkg")
	r := NewRouter(s, "pkg-1.0.dist-info", true)

	tests := []struct {
		entry      string
		category   Category
		path       string
		recordPath string
	}{
		{"pkg/__init__.py", Purelib,
			"/usr/lib/python3.12/site-packages/pkg/__init__.py", "pkg/__init__.py"},
		{"pkg-1.0.dist-info/METADATA", DistInfo,
			"/usr/lib/python3.12/site-packages/pkg-1.0.dist-info/METADATA",
			"pkg-1.0.dist-info/METADATA"},
		{"pkg-1.0.data/scripts/pkg-cli", Scripts,
			"/usr/bin/pkg-cli", "../../../bin/pkg-cli"},
		{"pkg-1.0.data/data/share/doc/README", Data,
			"/usr/share/doc/README", "../../../share/doc/README"},
		{"pkg-1.0.data/headers/pkg.h", Headers,
			"/usr/include/python3.12/pkg/pkg.h", "../../../include/python3.12/pkg/pkg.h"},
		{"pkg-1.0.data/purelib/extra.py", Purelib,
			"/usr/lib/python3.12/site-packages/extra.py", "extra.py"},
	}
	for _, tt := range tests {
		got, err := r.Route(tt.entry)
		require.NoError(t, err, "entry %q", tt.entry)
		assert.Equal(t, tt.category, got.Category, "entry %q", tt.entry)
		assert.Equal(t, tt.path, got.Path, "entry %q", tt.entry)
		assert.Equal(t, tt.recordPath, got.RecordPath, "entry %q", tt.entry)
	}
}

func TestRoute_RootIsPlatlib(t *testing.T) {
	id := testIdentity()
	id.Paths = python.SchemePaths{
		Purelib: "/usr/lib/python3.12/site-packages",
		Platlib: "/usr/lib64/python3.12/site-packages",
		Scripts: "/usr/bin",
		Include: "/usr/include/python3.12",
		Data:    "/usr",
	}
	r := NewRouter(New(id, "/usr", "pkg"), "pkg-1.0.dist-info", false)

	got, err := r.Route("pkg/_native.so")
	require.NoError(t, err)
	assert.Equal(t, Platlib, got.Category)
	assert.Equal(t, "/usr/lib64/python3.12/site-packages/pkg/_native.so", got.Path)
}

func TestRoute_UnknownDataCategory(t *testing.T) {
	r := NewRouter(New(testIdentity(), "/usr", "pkg"), "pkg-1.0.dist-info", true)

	_, err := r.Route("pkg-1.0.data/plugins/x.py")
	assert.Error(t, err)

	_, err = r.Route("pkg-1.0.data/orphan")
	assert.Error(t, err)
}

func TestTargetValidate(t *testing.T) {
	require.NoError(t, Target{Interpreter: "/usr/bin/python3"}.Validate())

	err := Target{Interpreter: "/usr/bin/python3", Sysroot: "sysroot"}.validateOn("linux")
	assert.Error(t, err)

	err = Target{Interpreter: "/usr/bin/python3", RewriteFrom: "/usr"}.validateOn("linux")
	assert.Error(t, err) // missing --rewrite-prefix-to

	var upe *UnsupportedPlatformError
	err = Target{Interpreter: `C:\py\python.exe`, Sysroot: "/sysroot"}.validateOn("windows")
	require.ErrorAs(t, err, &upe)

	err = Target{
		Interpreter: `C:\py\python.exe`, RewriteFrom: "/usr", RewriteTo: "/opt",
	}.validateOn("windows")
	require.ErrorAs(t, err, &upe)
}

func TestEffectiveInterpreter(t *testing.T) {
	// Plain.
	assert.Equal(t, "/usr/bin/python3",
		Target{Interpreter: "/usr/bin/python3"}.EffectiveInterpreter())

	// Prefix rewrite.
	assert.Equal(t, "/opt/py/bin/python3", Target{
		Interpreter: "/usr/bin/python3",
		RewriteFrom: "/usr", RewriteTo: "/opt/py",
	}.EffectiveInterpreter())

	// Rewrite that does not match leaves the path untouched.
	assert.Equal(t, "/usr/bin/python3", Target{
		Interpreter: "/usr/bin/python3",
		RewriteFrom: "/opt", RewriteTo: "/x",
	}.EffectiveInterpreter())

	// Sysroot stripped.
	assert.Equal(t, "/usr/bin/python3", Target{
		Interpreter: "/build/sysroot/usr/bin/python3",
		Sysroot:     "/build/sysroot",
	}.EffectiveInterpreter())

	// Rewrite wins over sysroot stripping.
	assert.Equal(t, "/target/bin/python3", Target{
		Interpreter: "/build/sysroot/usr/bin/python3",
		RewriteFrom: "/build/sysroot/usr", RewriteTo: "/target",
		Sysroot:     "/build/sysroot",
	}.EffectiveInterpreter())
}

func TestRewriteShebang(t *testing.T) {
	in := []byte("#!python\nprint('hi')\n")
	out := RewriteShebang(in, "/usr/bin/python3.12")
	assert.Equal(t, "#!/usr/bin/python3.12\nprint('hi')\n", string(out))

	// Placeholder with \r\n line ending.
	out = RewriteShebang([]byte("#!python\r\nbody\n"), "/usr/bin/python3")
	assert.Equal(t, "#!/usr/bin/python3\nbody\n", string(out))

	// Non-placeholder shebangs and plain files pass through.
	for _, in := range []string{"#!/bin/sh\necho hi\n", "#!python3-config\n", "data"} {
		assert.Equal(t, in, string(RewriteShebang([]byte(in), "/usr/bin/python3")))
	}
}

func TestBuildShebang_Polyglot(t *testing.T) {
	// Space in path forces the /bin/sh wrapper.
	got := string(BuildShebang("/opt/my python/bin/python3"))
	assert.Contains(t, got, "#!/bin/sh\n")
	assert.Contains(t, got, `'/opt/my python/bin/python3' "$0" "$@"`)

	// Overlong path forces the wrapper too.
	longPath := "/p"
	for len(longPath) < 130 {
		longPath += "/x"
	}
	assert.Contains(t, string(BuildShebang(longPath)), "#!/bin/sh\n")
}
