package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obellish/vmm-sub002/internal/mastbin"
	"github.com/obellish/vmm-sub002/internal/version"
)

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show mast build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Current(formatVersion())
		switch strings.ToLower(versionFormat) {
		case "json":
			return renderVersionJSON(cmd.OutOrStdout(), info)
		case "pretty":
			renderVersionPretty(cmd.OutOrStdout(), info)
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}
	},
}

func formatVersion() string {
	v := mastbin.Version
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

func renderVersionPretty(out io.Writer, info version.Info) {
	fmt.Fprintf(out, "mast %s (artifact format %s)\n", version.Pretty(), info.Format)
	if info.GitCommit != "" {
		fmt.Fprintf(out, "commit: %s\n", info.GitCommit)
	}
	if info.BuildDate != "" {
		fmt.Fprintf(out, "built:  %s\n", info.BuildDate)
	}
}

func renderVersionJSON(out io.Writer, info version.Info) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
