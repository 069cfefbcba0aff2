package main

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pywheel/pywheel/internal/pyc"
	"github.com/pywheel/pywheel/internal/python"
	"github.com/pywheel/pywheel/internal/scheme"
	"github.com/pywheel/pywheel/internal/verify"
)

func verifyPycCmd() *cobra.Command {
	var (
		destDir     string
		prefix      string
		interpreter string
		sysroot     string
		levels      []int
	)
	cmd := &cobra.Command{
		Use:   "verify-pyc",
		Short: "Verify bytecode caches in an installed tree (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe := interpreter
			if sysroot != "" {
				exe = filepath.Join(sysroot, interpreter)
			}
			id, err := python.Probe(cmd.Context(), exe)
			if err != nil {
				return err
			}

			if len(levels) == 0 {
				levels = slices.Clone(pyc.AllLevels)
			}
			s := scheme.New(id, prefix, "")
			report, err := verify.Run(verify.Config{
				DestDir:  destDir,
				SiteDirs: s.SiteDirs(),
				Levels:   levels,
				Identity: id,
			})
			if err != nil {
				return err
			}

			findings := report.Findings
			slices.SortFunc(findings, func(a, b verify.Finding) int {
				if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
					return c
				}
				return cmp.Compare(a.Cache, b.Cache)
			})
			for _, f := range findings {
				fmt.Fprintln(os.Stdout, f.Line(destDir))
			}
			if !report.OK() {
				return fmt.Errorf("%d of %d bytecode caches failed verification",
					len(findings), report.Checked)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&destDir, "destdir", "", "root of the installed tree")
	cmd.Flags().StringVar(&prefix, "prefix", scheme.DefaultPrefix, "prefix the tree was installed to")
	cmd.Flags().StringVar(&interpreter, "interpreter", defaultInterpreter, "target interpreter")
	cmd.Flags().StringVar(&sysroot, "sysroot", "", "alternate root the target interpreter lives under")
	cmd.Flags().Var(&levelsValue{&levels}, "optimize",
		"comma-separated optimization levels to verify, or 'all' (default all)")
	_ = cmd.MarkFlagRequired("destdir")
	return cmd
}
