package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pywheel/pywheel/internal/backend"
	"github.com/pywheel/pywheel/internal/config"
)

const defaultInterpreter = "/usr/bin/python3"

// buildFlags are shared by build-wheel and install-from-source.
type buildFlags struct {
	pyprojectTOML   string
	backendName     string
	fallbackBackend string
	noFallback      bool
	configJSON      string
	prefix          string
	interpreter     string
	sysroot         string
	allowCompressed bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pyprojectTOML, "pyproject-toml", "pyproject.toml",
		"path to pyproject.toml (used only if --backend is not given)")
	cmd.Flags().StringVar(&f.backendName, "backend", "",
		"build backend to use (defaults to reading from pyproject.toml)")
	cmd.Flags().StringVar(&f.fallbackBackend, "fallback-backend", backend.DefaultFallback,
		"backend to use if pyproject.toml does not declare one")
	cmd.Flags().BoolVar(&f.noFallback, "no-fallback-backend", false,
		"require a backend declaration in pyproject.toml")
	cmd.Flags().StringVar(&f.configJSON, "config-json", "",
		"JSON object of config_settings to pass to the build backend")
	cmd.Flags().StringVar(&f.prefix, "prefix", "",
		"install prefix to expose to the build backend via sysconfig")
	cmd.Flags().BoolVar(&f.allowCompressed, "allow-compressed", false,
		"let the backend compress the wheel instead of forcing stored members")
	cmd.Flags().StringVar(&f.interpreter, "interpreter", defaultInterpreter,
		"target interpreter")
	cmd.Flags().StringVar(&f.sysroot, "sysroot", "",
		"alternate root the target interpreter and install paths live under")
}

// builder resolves the backend and returns a ready hook runner.
func (f *buildFlags) builder() (backend.Builder, error) {
	proj, err := config.Load(f.pyprojectTOML)
	if err != nil {
		return backend.Builder{}, err
	}
	fallback := f.fallbackBackend
	if f.noFallback {
		fallback = ""
	}
	name, backendPath, err := backend.Resolve(proj, f.backendName, fallback)
	if err != nil {
		return backend.Builder{}, err
	}
	return backend.Builder{
		Exe:             f.buildExe(),
		Backend:         name,
		BackendPath:     backendPath,
		Prefix:          f.prefix,
		ConfigJSON:      f.configJSON,
		AllowCompressed: f.allowCompressed,
	}, nil
}

// buildExe is the interpreter binary to execute on the build host:
// the target interpreter path, relocated under the sysroot when one
// is configured.
func (f *buildFlags) buildExe() string {
	if f.sysroot == "" {
		return f.interpreter
	}
	return filepath.Join(f.sysroot, f.interpreter)
}

func getBackendCmd() *cobra.Command {
	var (
		pyprojectTOML string
		outputFD      int
	)
	cmd := &cobra.Command{
		Use:   "get-backend",
		Short: "Print build-backend from pyproject.toml",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			proj, err := config.Load(pyprojectTOML)
			if err != nil {
				return err
			}
			out, done, err := openOutput(outputFD)
			if err != nil {
				return err
			}
			defer done()
			_, err = fmt.Fprintln(out, proj.BuildSystem.BuildBackend)
			return err
		},
	}
	cmd.Flags().StringVar(&pyprojectTOML, "pyproject-toml", "pyproject.toml",
		"path to pyproject.toml")
	cmd.Flags().IntVar(&outputFD, "output-fd", 1, "fd to write the backend name to")
	return cmd
}

func buildWheelCmd() *cobra.Command {
	var (
		flags    buildFlags
		outputFD int
		wheelDir string
	)
	cmd := &cobra.Command{
		Use:   "build-wheel",
		Short: "Build a wheel from sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// A bad --output-fd should fail before the backend runs.
			out, done, err := openOutput(outputFD)
			if err != nil {
				return err
			}
			defer done()
			name, err := buildWheel(cmd.Context(), &flags, wheelDir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, name)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&outputFD, "output-fd", 0, "fd to write the wheel name to")
	cmd.Flags().StringVar(&wheelDir, "wheel-dir", "", "directory to write the wheel into")
	_ = cmd.MarkFlagRequired("output-fd")
	_ = cmd.MarkFlagRequired("wheel-dir")
	return cmd
}

func buildWheel(ctx context.Context, flags *buildFlags, wheelDir string) (string, error) {
	b, err := flags.builder()
	if err != nil {
		return "", err
	}
	return b.BuildWheel(ctx, wheelDir)
}
