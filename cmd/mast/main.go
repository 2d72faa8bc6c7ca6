// Package main implements the mast CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/obellish/vmm-sub002/internal/trace"
	"github.com/obellish/vmm-sub002/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "mast",
	Short:         "Link and inspect MAST forests and programs",
	Long:          `mast merges, deduplicates and inspects Merkelized abstract syntax tree artifacts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		cleanup, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		traceCleanup = cleanup
		stop, err := setupProfiling(cmd)
		if err != nil {
			return err
		}
		profileCleanup = stop
		return nil
	},
}

// cleanups of the running command, replaced by PersistentPreRunE
var (
	traceCleanup   = func() {}
	profileCleanup = func() {}
)

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(programCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	addTraceFlags(rootCmd)
	addProfileFlags(rootCmd)

	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		dumpTraceRing(rootCmd)
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
	}
	profileCleanup()
	traceCleanup()
	if err != nil {
		os.Exit(1)
	}
}

func setupColor(cmd *cobra.Command) error {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch value {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
	return nil
}

func quiet(cmd *cobra.Command) bool {
	q, err := cmd.Root().PersistentFlags().GetBool("quiet")
	return err == nil && q
}

func timingsEnabled(cmd *cobra.Command) bool {
	t, err := cmd.Root().PersistentFlags().GetBool("timings")
	return err == nil && t
}

// dumpTraceRing prints the events kept in memory after a failed command.
func dumpTraceRing(cmd *cobra.Command) {
	ring := trace.RingOf(trace.FromContext(cmd.Context()))
	if ring == nil {
		return
	}
	events := ring.Snapshot()
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "trace: last %d events\n", len(events))
	if err := ring.Dump(os.Stderr, trace.FormatText); err != nil {
		fmt.Fprintf(os.Stderr, "trace: dump error: %v\n", err)
	}
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
