package wheel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryPoints(t *testing.T) {
	input := strings.Join([]string{
		"# generated by the build backend",
		"[console_scripts]",
		"pkg-run = pkg.cli:main",
		"pkg-extra = pkg.cli:extra.run [color]",
		"",
		"[gui_scripts]",
		"pkg-gui = pkg.gui:launch",
		"",
		"[pkg.plugins]",
		"loader = pkg.plugins:load",
	}, "\n")

	eps, err := ParseEntryPoints(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []EntryPoint{
		{Name: "pkg-run", Module: "pkg.cli", Attr: "main", Section: "console_scripts"},
		{Name: "pkg-extra", Module: "pkg.cli", Attr: "extra.run", Section: "console_scripts"},
		{Name: "pkg-gui", Module: "pkg.gui", Attr: "launch", Section: "gui_scripts"},
	}, eps)
}

func TestParseEntryPoints_Malformed(t *testing.T) {
	_, err := ParseEntryPoints(strings.NewReader("[console_scripts]\nbroken-line\n"))
	assert.Error(t, err)

	_, err = ParseEntryPoints(strings.NewReader("[console_scripts]\nname = pkg.cli\n"))
	assert.Error(t, err)
}

func TestArchiveEntryPoints(t *testing.T) {
	files := basicWheelFiles()
	files["pkg-1.0.dist-info/entry_points.txt"] = "[console_scripts]\npkg-run = pkg.cli:main\n"
	path := writeWheel(t, "pkg-1.0-py3-none-any.whl", files)

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	eps, err := a.EntryPoints()
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "pkg-run", eps[0].Name)
	assert.Equal(t, "pkg.cli", eps[0].Module)
	assert.Equal(t, "main", eps[0].Attr)
}

func TestArchiveEntryPoints_None(t *testing.T) {
	path := writeWheel(t, "pkg-1.0-py3-none-any.whl", basicWheelFiles())

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	eps, err := a.EntryPoints()
	require.NoError(t, err)
	assert.Empty(t, eps)
}
