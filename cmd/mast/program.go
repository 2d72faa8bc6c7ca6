package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/obellish/vmm-sub002/internal/mastbin"
	"github.com/obellish/vmm-sub002/internal/program"
)

var programCmd = &cobra.Command{
	Use:   "program [flags] <forest>",
	Short: "Pin an entrypoint in a forest artifact",
	Long: `Build a program artifact from a forest artifact. The entrypoint is the
procedure with the MAST root given by --entry; --kernel lists the procedures
the program may syscall into.`,
	Args: cobra.ExactArgs(1),
	RunE: programExecution,
}

func init() {
	programCmd.Flags().String("entry", "", "MAST root of the entrypoint procedure (required)")
	programCmd.Flags().StringSlice("kernel", nil, "kernel procedure digests")
	programCmd.Flags().StringP("output", "o", "", "output path (default: input with .masp extension)")
}

func programExecution(cmd *cobra.Command, args []string) error {
	entry, err := cmd.Flags().GetString("entry")
	if err != nil {
		return err
	}
	if strings.TrimSpace(entry) == "" {
		return errors.New("--entry is required")
	}
	kernelValues, err := cmd.Flags().GetStringSlice("kernel")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		output = replaceExt(args[0], mastbin.KindProgram.Extension())
	}

	digests, err := parseDigests(append([]string{entry}, kernelValues...))
	if err != nil {
		return err
	}
	kernel, err := program.NewKernel(digests[1:])
	if err != nil {
		return err
	}

	a, err := mastbin.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := program.FromDigest(a.Forest, digests[0], kernel)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	data, err := mastbin.MarshalProgram(p)
	if err != nil {
		return err
	}
	if err := mastbin.WriteFile(output, data); err != nil {
		return err
	}
	if !quiet(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", color.GreenString("program"), p.Info(), output)
	}
	return nil
}

func replaceExt(path, ext string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexAny(path, `/\`) {
		return path[:i] + ext
	}
	return path + ext
}
