package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/obellish/vmm-sub002/internal/mastcache"
	"github.com/obellish/vmm-sub002/internal/observ"
	"github.com/obellish/vmm-sub002/internal/pipeline"
)

var linkCmd = &cobra.Command{
	Use:   "link [flags] [artifacts...]",
	Short: "Merge MAST artifacts into one forest or program",
	Long: `Merge MAST artifacts into one forest, deduplicating shared subtrees and
resolving external references between the inputs. Without arguments the link
is described by the nearest mast.toml. Setting --entry emits a program.`,
	RunE: linkExecution,
}

func init() {
	linkCmd.Flags().StringP("output", "o", "", "output artifact path")
	linkCmd.Flags().String("name", "", "link name shown in progress output")
	linkCmd.Flags().String("entry", "", "MAST root of the program entrypoint")
	linkCmd.Flags().StringSlice("kernel", nil, "kernel procedure digests (requires --entry)")
	linkCmd.Flags().Int("jobs", 0, "max parallel decodes (0=auto)")
	linkCmd.Flags().Bool("no-cache", false, "do not read or write the link cache")
	linkCmd.Flags().String("cache-dir", "", "link cache directory (default $XDG_CACHE_HOME/mast)")
	linkCmd.Flags().String("manifest", "", "path to mast.toml (default: search upwards)")
	linkCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	linkCmd.Flags().Bool("timings-json", false, "print phase timings as JSON")
}

// linkOptions are the resolved link settings: manifest values overridden by
// flags.
type linkOptions struct {
	req      pipeline.LinkRequest
	useCache bool
	cacheDir string
}

func resolveLinkOptions(cmd *cobra.Command, args []string) (*linkOptions, error) {
	flags := cmd.Flags()
	opts := &linkOptions{useCache: true}

	manifestPath, err := flags.GetString("manifest")
	if err != nil {
		return nil, err
	}
	var m *linkManifest
	switch {
	case manifestPath != "":
		if m, err = loadManifestFile(manifestPath); err != nil {
			return nil, err
		}
	case len(args) == 0:
		var found bool
		if m, found, err = loadManifest("."); err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.New(noManifestMessage)
		}
	}
	if m != nil {
		opts.req = pipeline.LinkRequest{
			Name:       m.Config.Link.Name,
			Inputs:     m.Inputs,
			Output:     m.Output,
			Entrypoint: m.Entrypoint,
			Kernel:     m.Kernel,
			Jobs:       m.Config.Link.Jobs,
		}
		opts.useCache = m.CacheEnabled
		opts.cacheDir = m.CacheDir
	}
	if len(args) > 0 {
		opts.req.Inputs = args
	}

	if flags.Changed("output") {
		if opts.req.Output, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("name") {
		if opts.req.Name, err = flags.GetString("name"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("entry") {
		entry, err := flags.GetString("entry")
		if err != nil {
			return nil, err
		}
		ds, err := parseDigests([]string{entry})
		if err != nil {
			return nil, fmt.Errorf("--entry: %w", err)
		}
		opts.req.Entrypoint = &ds[0]
	}
	if flags.Changed("kernel") {
		values, err := flags.GetStringSlice("kernel")
		if err != nil {
			return nil, err
		}
		if opts.req.Kernel, err = parseDigests(values); err != nil {
			return nil, fmt.Errorf("--kernel: %w", err)
		}
	}
	if flags.Changed("jobs") {
		if opts.req.Jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, err
		}
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		opts.useCache = false
	}
	if flags.Changed("cache-dir") {
		if opts.cacheDir, err = flags.GetString("cache-dir"); err != nil {
			return nil, err
		}
	}

	if opts.req.Output == "" {
		return nil, errors.New("no output path: pass -o or set [link].output")
	}
	if opts.req.Name == "" {
		base := filepath.Base(opts.req.Output)
		opts.req.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	return opts, nil
}

func linkExecution(cmd *cobra.Command, args []string) error {
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	timingsJSON, err := cmd.Flags().GetBool("timings-json")
	if err != nil {
		return err
	}

	opts, err := resolveLinkOptions(cmd, args)
	if err != nil {
		return err
	}
	if opts.useCache {
		var cache *mastcache.Cache
		if opts.cacheDir != "" {
			cache, err = mastcache.OpenDir(opts.cacheDir)
		} else {
			cache, err = mastcache.Open("mast")
		}
		if err != nil {
			// linking still works without a cache
			fmt.Fprintf(cmd.ErrOrStderr(), "%s cache disabled: %v\n", color.YellowString("warning:"), err)
		} else {
			opts.req.Cache = cache
		}
	}
	timer := observ.NewTimer()
	opts.req.Timer = timer

	var res *pipeline.LinkResult
	if !quiet(cmd) && shouldUseTUI(mode) {
		res, err = runLinkWithUI(cmd.Context(), "link "+opts.req.Name, opts.req)
	} else {
		res, err = pipeline.Link(cmd.Context(), opts.req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.YellowString("warning:"), w)
	}
	if !quiet(cmd) {
		printLinkSummary(out, opts.req.Name, res)
	}
	if timingsEnabled(cmd) {
		printStageTimings(out, res.Timings)
	}
	if timingsJSON {
		return printTimerReport(out, timer)
	}
	return nil
}

func printLinkSummary(out io.Writer, name string, res *pipeline.LinkResult) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s -> %s (%s, %d bytes)\n",
		color.GreenString("linked"), bold(name), res.Output, res.Kind, res.Bytes)
	if res.Cached {
		fmt.Fprintf(out, "  %s, %d nodes\n", color.CyanString("from cache"), res.Forest.NumNodes())
	} else {
		s := res.Stats
		fmt.Fprintf(out, "  %d nodes from %d (%d deduplicated, %d externals resolved), %d decorators\n",
			s.OutputNodes, s.InputNodes, s.DedupedNodes, s.ResolvedExternals, s.OutputDecorators)
	}
	fmt.Fprintf(out, "  %d procedures\n", len(res.Forest.Roots()))
	if res.Program != nil {
		info := res.Program.Info()
		fmt.Fprintf(out, "  program %s, kernel of %d procedures\n", info.Hash, info.Kernel.Len())
	}
}
