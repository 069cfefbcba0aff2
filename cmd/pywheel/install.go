package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pywheel/pywheel/internal/compile"
	"github.com/pywheel/pywheel/internal/install"
	"github.com/pywheel/pywheel/internal/pyc"
	"github.com/pywheel/pywheel/internal/python"
	"github.com/pywheel/pywheel/internal/scheme"
	"github.com/pywheel/pywheel/internal/wheel"
)

// levelsValue is a pflag.Value for --optimize: a comma-separated list
// of levels, or "all".
type levelsValue struct {
	levels *[]int
}

func (v *levelsValue) String() string {
	if v.levels == nil || len(*v.levels) == 0 {
		return ""
	}
	parts := make([]string, len(*v.levels))
	for i, l := range *v.levels {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}

func (v *levelsValue) Type() string { return "levels" }

func (v *levelsValue) Set(s string) error {
	levels, err := pyc.ParseLevels(s)
	if err != nil {
		return err
	}
	*v.levels = levels
	return nil
}

var _ pflag.Value = (*levelsValue)(nil)

// installFlags are shared by install-wheel and install-from-source.
type installFlags struct {
	destDir     string
	prefix      string
	interpreter string
	rewriteFrom string
	rewriteTo   string
	sysroot     string
	levels      []int
	pycMode     string
	symlinkTo   string
	symlinkPyc  bool
	overwrite   bool
}

func (f *installFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.destDir, "destdir", "",
		"staging directory prepended to all install paths")
	if cmd.Flags().Lookup("prefix") == nil {
		cmd.Flags().StringVar(&f.prefix, "prefix", scheme.DefaultPrefix, "prefix to install to")
	}
	if cmd.Flags().Lookup("interpreter") == nil {
		cmd.Flags().StringVar(&f.interpreter, "interpreter", defaultInterpreter,
			"interpreter path to put in script shebangs")
	}
	cmd.Flags().StringVar(&f.rewriteFrom, "rewrite-prefix-from", "",
		"prefix to strip from embedded interpreter paths")
	cmd.Flags().StringVar(&f.rewriteTo, "rewrite-prefix-to", "",
		"replacement for --rewrite-prefix-from")
	if cmd.Flags().Lookup("sysroot") == nil {
		cmd.Flags().StringVar(&f.sysroot, "sysroot", "",
			"alternate root the target interpreter and install paths live under")
	}
	cmd.Flags().Var(&levelsValue{&f.levels}, "optimize",
		"comma-separated bytecode optimization levels, or 'all'")
	cmd.Flags().StringVar(&f.pycMode, "pyc-mode", "timestamp",
		"bytecode invalidation mode: timestamp, checked-hash or unchecked-hash")
	cmd.Flags().StringVar(&f.symlinkTo, "symlink-to", "",
		"reference destdir to deduplicate identical files against via symlinks")
	cmd.Flags().BoolVar(&f.symlinkPyc, "symlink-pyc", false,
		"replace byte-identical bytecode across optimization levels with symlinks")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false,
		"atomically replace existing destination files instead of failing")
	_ = cmd.MarkFlagRequired("destdir")
}

// probeExe is the interpreter binary executed on the build host.
func (f *installFlags) probeExe() string {
	if f.sysroot == "" {
		return f.interpreter
	}
	return filepath.Join(f.sysroot, f.interpreter)
}

func installWheelCmd() *cobra.Command {
	var flags installFlags
	cmd := &cobra.Command{
		Use:   "install-wheel [flags] WHEEL",
		Short: "Install a built wheel into a destination directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), &flags, args[0])
		},
	}
	flags.register(cmd)
	return cmd
}

func installFromSourceCmd() *cobra.Command {
	var (
		bflags buildFlags
		iflags installFlags
	)
	cmd := &cobra.Command{
		Use:   "install-from-source",
		Short: "Build a wheel from sources and install it, discarding the wheel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wheelDir, err := os.MkdirTemp("", "pywheel-")
			if err != nil {
				return fmt.Errorf("create wheel dir: %w", err)
			}
			defer os.RemoveAll(wheelDir)

			// The two flag sets share --interpreter, --sysroot and
			// --prefix.
			iflags.interpreter = bflags.interpreter
			iflags.sysroot = bflags.sysroot
			iflags.prefix = bflags.prefix
			if iflags.prefix == "" {
				iflags.prefix = scheme.DefaultPrefix
			}

			name, err := buildWheel(cmd.Context(), &bflags, wheelDir)
			if err != nil {
				return err
			}
			return runInstall(cmd.Context(), &iflags, filepath.Join(wheelDir, name))
		},
	}
	bflags.register(cmd)
	iflags.register(cmd)
	return cmd
}

func runInstall(ctx context.Context, flags *installFlags, wheelPath string) error {
	mode, err := pyc.ParseInvalidationMode(flags.pycMode)
	if err != nil {
		return err
	}

	a, err := wheel.Open(wheelPath)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := python.Probe(ctx, flags.probeExe())
	if err != nil {
		return err
	}
	id.Executable = flags.interpreter

	s := scheme.New(id, flags.prefix, a.Name())
	result, err := install.Install(a, install.Options{
		DestDir: flags.destDir,
		Router:  scheme.NewRouter(s, a.DistInfoDir(), a.RootIsPurelib()),
		Target: scheme.Target{
			Interpreter: flags.interpreter,
			RewriteFrom: flags.rewriteFrom,
			RewriteTo:   flags.rewriteTo,
			Sysroot:     flags.sysroot,
		},
		Overwrite: flags.overwrite,
		SymlinkTo: flags.symlinkTo,
	})
	if err != nil {
		return err
	}

	if len(flags.levels) == 0 {
		return nil
	}
	return compileInstalled(ctx, flags, id, result.Sources, mode)
}

func compileInstalled(ctx context.Context, flags *installFlags, id python.Identity,
	sources []string, mode pyc.InvalidationMode) error {
	compiler := compile.Interpreter{Exe: flags.probeExe()}
	batch := compile.Batch(ctx, compiler, flags.destDir, sources,
		flags.levels, mode, id.CacheTag)

	if flags.symlinkPyc {
		if _, err := compile.Dedup(batch.Compiled); err != nil {
			return err
		}
	}

	if len(batch.Failures) > 0 {
		for _, failure := range batch.Failures {
			fmt.Fprintln(os.Stderr, failure.Error())
		}
		return fmt.Errorf("bytecode compilation failed for %d of %d files",
			len(batch.Failures), len(batch.Failures)+batch.Written)
	}
	return nil
}
