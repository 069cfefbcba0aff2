package scheme

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
)

// shebangMarker is the placeholder interpreter that wheel script
// entries carry in their first line.
var shebangMarker = []byte("#!python")

// maxSimpleShebang is the portable kernel limit for a shebang line.
const maxSimpleShebang = 127

// UnsupportedPlatformError reports a sysroot or prefix rewrite request
// on a platform without POSIX absolute-path semantics.
type UnsupportedPlatformError struct {
	Feature string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("%s requires POSIX path semantics (unsupported on %s)",
		e.Feature, runtime.GOOS)
}

// Target describes the interpreter the installed tree will run under.
type Target struct {
	// Interpreter is the interpreter path used to build and compile.
	Interpreter string

	// RewriteFrom/RewriteTo is an optional textual prefix substitution
	// applied to embedded interpreter paths.
	RewriteFrom string
	RewriteTo   string

	// Sysroot, when set, marks Interpreter as a build-host path inside
	// an alternate root; the sysroot prefix is stripped from embedded
	// paths so they are valid on the target system.
	Sysroot string
}

// Validate rejects configurations this platform cannot express.
func (t Target) Validate() error {
	return t.validateOn(runtime.GOOS)
}

func (t Target) validateOn(goos string) error {
	if t.Sysroot != "" {
		if goos == "windows" {
			return &UnsupportedPlatformError{Feature: "sysroot rewriting"}
		}
		if !strings.HasPrefix(t.Sysroot, "/") {
			return fmt.Errorf("sysroot %q must be absolute", t.Sysroot)
		}
	}
	if t.RewriteFrom != "" {
		if goos == "windows" {
			return &UnsupportedPlatformError{Feature: "prefix rewriting"}
		}
		if !strings.HasPrefix(t.RewriteFrom, "/") {
			return fmt.Errorf("rewrite prefix %q must be absolute", t.RewriteFrom)
		}
	}
	if (t.RewriteFrom == "") != (t.RewriteTo == "") {
		return fmt.Errorf("--rewrite-prefix-from and --rewrite-prefix-to must be given together")
	}
	return nil
}

// EffectiveInterpreter is the interpreter path as it should appear in
// installed scripts: the configured interpreter with the rewrite rule
// applied, or with the sysroot stripped. Non-matching paths pass
// through untouched.
func (t Target) EffectiveInterpreter() string {
	interp := t.Interpreter
	if t.RewriteFrom != "" {
		if rest, ok := strings.CutPrefix(interp, t.RewriteFrom); ok {
			return t.RewriteTo + rest
		}
	}
	if t.Sysroot != "" {
		if rest, ok := strings.CutPrefix(interp, strings.TrimSuffix(t.Sysroot, "/")); ok {
			return rest
		}
	}
	return interp
}

// RewriteShebang replaces the "#!python" placeholder first line with a
// shebang for interp. Content without the placeholder is returned
// unchanged.
func RewriteShebang(content []byte, interp string) []byte {
	if !bytes.HasPrefix(content, shebangMarker) {
		return content
	}
	rest := content[len(shebangMarker):]
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		// e.g. "#!python3-config" — not the placeholder.
		return content
	}
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		rest = content[i+1:]
	} else {
		rest = nil
	}

	out := append(BuildShebang(interp), '\n')
	return append(out, rest...)
}

// BuildShebang renders a shebang line for the interpreter. Paths with
// spaces or beyond the portable kernel limit get the /bin/sh polyglot
// wrapper instead of a plain "#!" line.
func BuildShebang(interp string) []byte {
	if !strings.Contains(interp, " ") && len(interp)+3 <= maxSimpleShebang {
		return []byte("#!" + interp)
	}
	quoted := "'" + strings.ReplaceAll(interp, "'", `'\''`) + "'"
	// Valid sh that re-execs under the real interpreter, and a no-op
	// triple-quoted string to Python itself.
	return []byte("#!/bin/sh\n" +
		"'''exec' " + quoted + " \"$0\" \"$@\"\n" +
		"'''")
}
