package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mastbin"
)

var hashCmd = &cobra.Command{
	Use:   "hash [flags] <artifact>...",
	Short: "Print the procedure digests of MAST artifacts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		short, err := cmd.Flags().GetBool("short")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, path := range args {
			a, err := mastbin.ReadFile(path)
			if err != nil {
				return err
			}
			show := func(d digest.Digest) string {
				if short {
					return d.Short()
				}
				return d.String()
			}
			if a.Program != nil {
				fmt.Fprintf(out, "%s  %s  program\n", show(a.Program.Hash()), path)
				continue
			}
			for _, r := range a.Forest.Roots() {
				fmt.Fprintf(out, "%s  %s  %s\n", show(a.Forest.NodeDigest(r)), path, r)
			}
		}
		return nil
	},
}

func init() {
	hashCmd.Flags().Bool("short", false, "print the 8 character digest prefix")
}
