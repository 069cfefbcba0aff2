package python

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
)

// probeScript is run with `python -c` to report the interpreter's
// identity as a single JSON object on stdout. It keeps to modules that
// exist on every supported CPython.
const probeScript = `
import importlib.util, json, sys, sysconfig
vars = {"base": "/usr", "platbase": "/usr", "installed_base": "/usr"}
paths = sysconfig.get_paths(vars=vars)
print(json.dumps({
    "version": "%d.%d" % sys.version_info[:2],
    "cache_tag": sys.implementation.cache_tag,
    "magic": list(importlib.util.MAGIC_NUMBER[:2]),
    "paths": {
        "purelib": paths["purelib"],
        "platlib": paths["platlib"],
        "scripts": paths["scripts"],
        "include": paths["include"],
        "data": paths["data"],
    },
}))
`

type probeReply struct {
	Version  string      `json:"version"`
	CacheTag string      `json:"cache_tag"`
	Magic    [2]byte     `json:"magic"`
	Paths    SchemePaths `json:"paths"`
}

// Probe runs the interpreter once and returns its identity. The
// executable recorded in the result is exe as given, not a resolved
// path, so callers control what lands in shebangs.
func Probe(ctx context.Context, exe string) (Identity, error) {
	cmd := exec.CommandContext(ctx, exe, "-c", probeScript)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Identity{}, fmt.Errorf("probe interpreter %s: %w (%s)",
			exe, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var reply probeReply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return Identity{}, fmt.Errorf("probe interpreter %s: malformed reply: %w", exe, err)
	}

	id := Identity{
		Executable: exe,
		Version:    reply.Version,
		CacheTag:   reply.CacheTag,
		Magic:      binary.LittleEndian.Uint16(reply.Magic[:]),
		Paths:      reply.Paths,
	}
	major, minor, err := id.VersionTuple()
	if err != nil {
		return Identity{}, fmt.Errorf("probe interpreter %s: %w", exe, err)
	}
	id.HashAlgo = HashAlgoForVersion(major, minor)

	slog.Debug("probed interpreter",
		"exe", exe, "version", id.Version, "cache_tag", id.CacheTag, "magic", id.Magic)
	return id, nil
}
