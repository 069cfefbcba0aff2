package scheme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScript(t *testing.T) {
	got := string(Script("/usr/bin/python3.12", "pkg.cli", "main"))

	assert.True(t, strings.HasPrefix(got, "#!/usr/bin/python3.12\n"))
	assert.Contains(t, got, "from pkg.cli import main\n")
	assert.Contains(t, got, "sys.exit(main())\n")
}

func TestScript_DottedAttr(t *testing.T) {
	got := string(Script("/usr/bin/python3.12", "pkg.cli", "Tool.run"))

	// Only the first attribute segment is importable.
	assert.Contains(t, got, "from pkg.cli import Tool\n")
	assert.Contains(t, got, "sys.exit(Tool.run())\n")
}

func TestRouteScript(t *testing.T) {
	s := New(testIdentity(), "/usr", "pkg")
	r := NewRouter(s, "pkg-1.0.dist-info", true)

	routed := r.RouteScript("pkg-run")
	assert.Equal(t, Scripts, routed.Category)
	assert.Equal(t, "/usr/bin/pkg-run", routed.Path)
	assert.Equal(t, "../../../bin/pkg-run", routed.RecordPath)
}
