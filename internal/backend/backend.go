// Package backend invokes the PEP 517 build hook. The hook runs inside
// the target interpreter as a subprocess; this package only owns the
// interface boundary: resolving which backend to call, passing the
// request, and collecting the produced wheel's filename over a
// dedicated pipe so backend chatter on stdout never corrupts it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pywheel/pywheel/internal/config"
)

// DefaultFallback is used when pyproject.toml does not declare a
// backend, matching the PEP 517 legacy behavior.
const DefaultFallback = "setuptools.build_meta:__legacy__"

// Resolve picks the backend to invoke: an explicit flag wins, then the
// pyproject.toml declaration, then the fallback. An empty fallback
// means the declaration is mandatory.
func Resolve(proj config.Project, explicit, fallback string) (string, []string, error) {
	if explicit != "" {
		return explicit, nil, nil
	}
	if b := proj.BuildSystem.BuildBackend; b != "" {
		return b, proj.BuildSystem.BackendPath, nil
	}
	if fallback == "" {
		return "", nil, errors.New(
			"pyproject.toml is missing or does not declare build-backend, and no fallback backend is allowed")
	}
	return fallback, nil, nil
}

// hookScript runs in the target interpreter. The request arrives as
// JSON on stdin; the produced wheel name is written to inherited fd 3,
// leaving stdout and stderr to the backend. Unless allow_compressed is
// set, zipfile is patched so the wheel is written uncompressed, which
// keeps its members bit-reproducible across zlib versions.
const hookScript = `
import importlib, json, os, sys
spec = json.load(sys.stdin)
cwd = os.getcwd()
sys.path = [p for p in sys.path if p not in ("", cwd)]
sys.path[0:0] = spec.get("backend_path") or []
if not spec.get("allow_compressed"):
    import zipfile
    orig_open = zipfile.ZipFile.open
    orig_write = zipfile.ZipFile.write
    orig_writestr = zipfile.ZipFile.writestr
    def stored_open(self, name, mode="r", pwd=None, *, force_zip64=False):
        if mode == "w":
            if not isinstance(name, zipfile.ZipInfo):
                name = zipfile.ZipInfo(name)
            name.compress_type = zipfile.ZIP_STORED
        return orig_open(self, name, mode, pwd, force_zip64=force_zip64)
    def stored_write(self, filename, arcname=None,
                     compress_type=None, compresslevel=None):
        return orig_write(self, filename, arcname, zipfile.ZIP_STORED)
    def stored_writestr(self, zinfo_or_arcname, data,
                        compress_type=None, compresslevel=None):
        return orig_writestr(self, zinfo_or_arcname, data, zipfile.ZIP_STORED)
    zipfile.ZipFile.open = stored_open
    zipfile.ZipFile.write = stored_write
    zipfile.ZipFile.writestr = stored_writestr
if spec.get("prefix"):
    import sysconfig
    vars = sysconfig.get_config_vars()
    for key in ("base", "platbase", "installed_base", "installed_platbase"):
        vars[key] = spec["prefix"]
modname, _, attrs = spec["backend"].partition(":")
backend = importlib.import_module(modname)
for name in filter(None, attrs.split(".")):
    backend = getattr(backend, name)
os.makedirs(spec["wheel_dir"], exist_ok=True)
wheel_name = backend.build_wheel(spec["wheel_dir"], spec.get("config"))
with os.fdopen(3, "w") as out:
    out.write(wheel_name)
`

// Builder runs the build hook.
type Builder struct {
	// Exe is the interpreter to run the hook under.
	Exe string

	// Backend is the "module:object" backend reference.
	Backend string

	// BackendPath is prepended to the hook's sys.path (PEP 517
	// backend-path).
	BackendPath []string

	// Prefix, when set, overrides the sysconfig base prefixes inside
	// the hook so backends that query install paths see the install
	// prefix rather than the interpreter's own.
	Prefix string

	// ConfigJSON is the raw --config-json value passed through as
	// config_settings, or empty.
	ConfigJSON string

	// AllowCompressed leaves the backend's zip compression alone
	// instead of forcing stored members.
	AllowCompressed bool
}

type hookSpec struct {
	Backend         string          `json:"backend"`
	BackendPath     []string        `json:"backend_path,omitempty"`
	WheelDir        string          `json:"wheel_dir"`
	Prefix          string          `json:"prefix,omitempty"`
	AllowCompressed bool            `json:"allow_compressed,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
}

func (b Builder) spec(wheelDir string) (hookSpec, error) {
	spec := hookSpec{
		Backend:         b.Backend,
		BackendPath:     b.BackendPath,
		WheelDir:        wheelDir,
		Prefix:          b.Prefix,
		AllowCompressed: b.AllowCompressed,
	}
	if b.ConfigJSON != "" {
		var settings map[string]any
		if err := json.Unmarshal([]byte(b.ConfigJSON), &settings); err != nil {
			return hookSpec{}, fmt.Errorf("--config-json must be a JSON object: %w", err)
		}
		spec.Config = json.RawMessage(b.ConfigJSON)
	}
	return spec, nil
}

// BuildWheel invokes build_wheel and returns the produced wheel's
// filename (a basename under wheelDir).
func (b Builder) BuildWheel(ctx context.Context, wheelDir string) (string, error) {
	spec, err := b.spec(wheelDir)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}

	nameR, nameW, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("create result pipe: %w", err)
	}
	defer nameR.Close()

	cmd := exec.CommandContext(ctx, b.Exe, "-c", hookScript)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{nameW} // fd 3 in the child

	slog.Info("building wheel", "backend", b.Backend, "wheel_dir", wheelDir)
	if err := cmd.Start(); err != nil {
		nameW.Close()
		return "", fmt.Errorf("start build backend: %w", err)
	}
	nameW.Close()

	name, readErr := io.ReadAll(nameR)
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("build backend %s: %w", b.Backend, err)
	}
	if readErr != nil {
		return "", fmt.Errorf("read wheel name: %w", readErr)
	}

	wheelName := strings.TrimSpace(string(name))
	if wheelName == "" {
		return "", fmt.Errorf("build backend %s reported no wheel name", b.Backend)
	}
	slog.Info("backend produced wheel", "wheel", wheelName)
	return wheelName, nil
}
