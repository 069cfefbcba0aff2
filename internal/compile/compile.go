// Package compile produces bytecode cache files for installed sources
// by driving the target interpreter, with best-effort batch semantics:
// every file is attempted, failures are accumulated, and the caller
// decides the exit status.
package compile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/pywheel/pywheel/internal/pyc"
)

// Job is one source file at one optimization level.
type Job struct {
	// Source is the on-disk path of the installed source (under the
	// destdir).
	Source string

	// Cache is the on-disk path the cache file is written to.
	Cache string

	// DFile is the path recorded inside the code object: the target
	// system path, without the destdir.
	DFile string

	Level int
	Mode  pyc.InvalidationMode
}

// Compiler compiles one job. The production implementation shells out
// to the target interpreter; tests substitute their own.
type Compiler interface {
	Compile(ctx context.Context, job Job) error
}

// compileScript drives py_compile in the target interpreter. The job
// arrives as JSON on stdin; a syntax error exits 1 with the message on
// stderr.
const compileScript = `
import json, py_compile, sys
spec = json.load(sys.stdin)
try:
    py_compile.compile(
        spec["source"],
        cfile=spec["cache"],
        dfile=spec["dfile"],
        doraise=True,
        optimize=spec["optimize"],
        invalidation_mode=py_compile.PycInvalidationMode[spec["mode"]],
    )
except py_compile.PyCompileError as err:
    sys.stderr.write(str(err))
    sys.exit(1)
`

// Interpreter compiles by invoking the interpreter binary per job.
type Interpreter struct {
	// Exe is the interpreter to run on the build host.
	Exe string
}

type compileSpec struct {
	Source   string `json:"source"`
	Cache    string `json:"cache"`
	DFile    string `json:"dfile"`
	Optimize int    `json:"optimize"`
	Mode     string `json:"mode"`
}

// Compile runs the interpreter's py_compile on the job.
func (i Interpreter) Compile(ctx context.Context, job Job) error {
	spec, err := json.Marshal(compileSpec{
		Source:   job.Source,
		Cache:    job.Cache,
		DFile:    job.DFile,
		Optimize: job.Level,
		Mode:     job.Mode.PyCompileName(),
	})
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, i.Exe, "-c", compileScript)
	cmd.Stdin = bytes.NewReader(spec)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("%s", msg)
		}
		return err
	}
	return nil
}

// CompileError is one failed source/level pair in a batch.
type CompileError struct {
	Source string
	Level  int
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s (optimize %d): %v", e.Source, e.Level, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// BatchResult reports a compilation batch.
type BatchResult struct {
	// Compiled maps each source to the cache files successfully
	// produced for it, ordered by level.
	Compiled map[string][]string

	// Written counts produced cache files.
	Written int

	// Failures holds every failed source/level pair.
	Failures []*CompileError
}

// Batch compiles every source at every level, sequentially in the
// given order. A failure with one file never stops the others.
func Batch(ctx context.Context, c Compiler, destDir string, sources []string,
	levels []int, mode pyc.InvalidationMode, cacheTag string) BatchResult {
	result := BatchResult{Compiled: make(map[string][]string, len(sources))}

	for _, source := range sources {
		for _, level := range levels {
			job := Job{
				Source: source,
				Cache:  pyc.CachePath(source, cacheTag, level),
				DFile:  targetPath(destDir, source),
				Level:  level,
				Mode:   mode,
			}
			if err := c.Compile(ctx, job); err != nil {
				slog.Warn("bytecode compilation failed",
					"source", source, "optimize", level, "error", err)
				result.Failures = append(result.Failures, &CompileError{
					Source: source, Level: level, Err: err,
				})
				continue
			}
			slog.Debug("compiled", "source", source, "optimize", level, "cache", job.Cache)
			result.Compiled[source] = append(result.Compiled[source], job.Cache)
			result.Written++
		}
	}
	return result
}

// targetPath strips the destdir, yielding the path the file will have
// on the target system.
func targetPath(destDir, source string) string {
	rel, err := filepath.Rel(destDir, source)
	if err != nil {
		return source
	}
	return "/" + filepath.ToSlash(rel)
}
