package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		quiet   bool
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:           "pywheel",
		Short:         "Build, install and verify Python wheels",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			} else if quiet {
				level = slog.LevelWarn
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
			slog.SetDefault(slog.New(handler))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"disable progress reporting")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"enable debug logging")

	rootCmd.AddCommand(
		getBackendCmd(),
		buildWheelCmd(),
		installWheelCmd(),
		installFromSourceCmd(),
		verifyPycCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pywheel: %v\n", err)
		return 1
	}
	return 0
}

// openOutput returns the file for an --output-fd value. Results go to
// an explicit descriptor so backend chatter on stdout cannot corrupt
// them; fd 0 is rejected.
func openOutput(fd int) (*os.File, func(), error) {
	switch fd {
	case 0:
		return nil, nil, fmt.Errorf("--output-fd 0 invalid")
	case 1:
		return os.Stdout, func() {}, nil
	case 2:
		return os.Stderr, func() {}, nil
	}
	f := os.NewFile(uintptr(fd), "output-fd "+strconv.Itoa(fd))
	if f == nil {
		return nil, nil, fmt.Errorf("--output-fd %d invalid", fd)
	}
	return f, func() { f.Close() }, nil
}
