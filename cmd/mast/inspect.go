package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/mastbin"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <artifact>",
	Short: "Print the contents of a MAST artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readInspectOptions(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		a, err := mastbin.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if opts.format == "json" {
			return renderInspectJSON(cmd.OutOrStdout(), args[0], len(data), a, opts)
		}
		renderInspect(cmd.OutOrStdout(), args[0], len(data), a, opts)
		return nil
	},
}

func init() {
	inspectCmd.Flags().Bool("nodes", false, "list every node")
	inspectCmd.Flags().Bool("ops", false, "list basic block operations (implies --nodes)")
	inspectCmd.Flags().Bool("decorators", false, "list decorators")
	inspectCmd.Flags().Bool("advice", false, "list advice map entries")
	inspectCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type inspectOptions struct {
	nodes      bool
	ops        bool
	decorators bool
	advice     bool
	format     string
}

func readInspectOptions(cmd *cobra.Command) (inspectOptions, error) {
	var opts inspectOptions
	var err error
	if opts.nodes, err = cmd.Flags().GetBool("nodes"); err != nil {
		return opts, err
	}
	if opts.ops, err = cmd.Flags().GetBool("ops"); err != nil {
		return opts, err
	}
	if opts.decorators, err = cmd.Flags().GetBool("decorators"); err != nil {
		return opts, err
	}
	if opts.advice, err = cmd.Flags().GetBool("advice"); err != nil {
		return opts, err
	}
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return opts, err
	}
	opts.format = strings.ToLower(opts.format)
	if opts.format != "pretty" && opts.format != "json" {
		return opts, fmt.Errorf("unsupported format %q (must be pretty or json)", opts.format)
	}
	opts.nodes = opts.nodes || opts.ops
	return opts, nil
}

var (
	headingColor = color.New(color.Bold)
	kindColor    = color.New(color.FgCyan)
	rootColor    = color.New(color.FgGreen, color.Bold)
	dimColor     = color.New(color.Faint)
)

func renderInspect(out io.Writer, path string, size int, a *mastbin.Artifact, opts inspectOptions) {
	f := a.Forest
	headingColor.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  kind        %s (%d bytes)\n", a.Kind, size)
	fmt.Fprintf(out, "  nodes       %d\n", f.NumNodes())
	fmt.Fprintf(out, "  decorators  %d\n", f.NumDecorators())
	fmt.Fprintf(out, "  advice      %d entries\n", f.AdviceMap().Len())
	fmt.Fprintf(out, "  procedures  %d\n", len(f.Roots()))
	for _, r := range f.Roots() {
		fmt.Fprintf(out, "    %s %s\n", rootColor.Sprint(r), f.NodeDigest(r))
	}
	if a.Program != nil {
		info := a.Program.Info()
		fmt.Fprintf(out, "  entrypoint  %s %s\n", a.Program.Entrypoint(), info.Hash)
		fmt.Fprintf(out, "  kernel      %d procedures\n", info.Kernel.Len())
		for _, k := range info.Kernel.Procedures() {
			fmt.Fprintf(out, "    %s\n", k)
		}
	}

	if opts.nodes {
		fmt.Fprintln(out)
		headingColor.Fprintln(out, "nodes")
		renderNodes(out, f, opts.ops)
	}
	if opts.decorators && f.NumDecorators() > 0 {
		fmt.Fprintln(out)
		headingColor.Fprintln(out, "decorators")
		width := runewidth.StringWidth(mast.DecoratorID(f.NumDecorators() - 1).String())
		for i, d := range f.Decorators() {
			fmt.Fprintf(out, "  %s  %s\n", padRight(mast.DecoratorID(i).String(), width), d)
		}
	}
	if opts.advice && f.AdviceMap().Len() > 0 {
		fmt.Fprintln(out)
		headingColor.Fprintln(out, "advice")
		for _, k := range f.AdviceMap().Keys() {
			v, _ := f.AdviceMap().Get(k)
			fmt.Fprintf(out, "  %s  %d bytes  %s\n", k.Short(), len(v), dimColor.Sprint(previewBytes(v, 16)))
		}
	}
}

func renderNodes(out io.Writer, f *mast.Forest, ops bool) {
	if f.NumNodes() == 0 {
		return
	}
	idWidth := runewidth.StringWidth(mast.NodeID(f.NumNodes() - 1).String())
	kindWidth := 0
	for _, n := range f.Nodes() {
		kindWidth = max(kindWidth, runewidth.StringWidth(n.Kind().String()))
	}
	for i, n := range f.Nodes() {
		id := mast.NodeID(i)
		label := padRight(id.String(), idWidth)
		if f.IsProcedureRoot(id) {
			label = rootColor.Sprint(label)
		}
		fmt.Fprintf(out, "  %s  %s  %s  %s\n",
			label, kindColor.Sprint(padRight(n.Kind().String(), kindWidth)), n.Digest().Short(), describeNode(n))
		if b, ok := n.(mast.BasicBlockNode); ok && ops {
			renderOps(out, f, b)
		}
	}
}

func renderOps(out io.Writer, f *mast.Forest, b mast.BasicBlockNode) {
	decs := b.DecoratedOps()
	for i, op := range b.Operations() {
		for len(decs) > 0 && decs[0].OpIndex == i {
			fmt.Fprintf(out, "      %s\n", dimColor.Sprint(f.Decorator(decs[0].Decorator)))
			decs = decs[1:]
		}
		fmt.Fprintf(out, "      %4d  %s\n", i, op)
	}
}

func describeNode(n mast.Node) string {
	var s string
	switch v := n.(type) {
	case mast.BasicBlockNode:
		s = fmt.Sprintf("%d ops", v.NumOperations())
		if d := len(v.DecoratedOps()); d > 0 {
			s += fmt.Sprintf(", %d op decorators", d)
		}
	case mast.JoinNode:
		s = fmt.Sprintf("%s ; %s", v.First(), v.Second())
	case mast.SplitNode:
		s = fmt.Sprintf("if %s else %s", v.OnTrue(), v.OnFalse())
	case mast.LoopNode:
		s = fmt.Sprintf("while %s", v.Body())
	case mast.CallNode:
		s = "call " + v.Callee().String()
		if v.IsSyscall() {
			s = "syscall " + v.Callee().String()
		}
	case mast.DynNode:
		s = "dyn"
		if v.IsDynCall() {
			s = "dyncall"
		}
	case mast.ExternalNode:
		s = "-> " + v.Digest().String()
	}
	if b, a := len(n.BeforeEnter()), len(n.AfterExit()); b+a > 0 {
		s += fmt.Sprintf(" [%d before, %d after]", b, a)
	}
	return s
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func previewBytes(b []byte, limit int) string {
	if len(b) <= limit {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:limit]) + "..."
}

type inspectNode struct {
	ID       uint32   `json:"id"`
	Kind     string   `json:"kind"`
	Digest   string   `json:"digest"`
	Children []uint32 `json:"children,omitempty"`
	Ops      []string `json:"ops,omitempty"`
	Before   []uint32 `json:"before_enter,omitempty"`
	After    []uint32 `json:"after_exit,omitempty"`
}

type inspectPayload struct {
	Path       string            `json:"path"`
	Kind       string            `json:"kind"`
	Bytes      int               `json:"bytes"`
	Nodes      int               `json:"nodes"`
	Decorators int               `json:"decorators"`
	Roots      []string          `json:"roots"`
	Entrypoint string            `json:"entrypoint,omitempty"`
	Kernel     []string          `json:"kernel,omitempty"`
	NodeList   []inspectNode     `json:"node_list,omitempty"`
	DecList    []string          `json:"decorator_list,omitempty"`
	Advice     map[string]string `json:"advice,omitempty"`
}

func renderInspectJSON(out io.Writer, path string, size int, a *mastbin.Artifact, opts inspectOptions) error {
	f := a.Forest
	p := inspectPayload{
		Path:       path,
		Kind:       a.Kind.String(),
		Bytes:      size,
		Nodes:      f.NumNodes(),
		Decorators: f.NumDecorators(),
		Roots:      make([]string, 0, len(f.Roots())),
	}
	for _, d := range f.ProcedureDigests() {
		p.Roots = append(p.Roots, d.String())
	}
	if a.Program != nil {
		p.Entrypoint = a.Program.Hash().String()
		for _, k := range a.Program.Kernel().Procedures() {
			p.Kernel = append(p.Kernel, k.String())
		}
	}
	if opts.nodes {
		for i, n := range f.Nodes() {
			node := inspectNode{
				ID:       uint32(i),
				Kind:     n.Kind().String(),
				Digest:   n.Digest().String(),
				Children: idsOf(n.Children()),
				Before:   decIDsOf(n.BeforeEnter()),
				After:    decIDsOf(n.AfterExit()),
			}
			if b, ok := n.(mast.BasicBlockNode); ok && opts.ops {
				for _, op := range b.Operations() {
					node.Ops = append(node.Ops, op.String())
				}
			}
			p.NodeList = append(p.NodeList, node)
		}
	}
	if opts.decorators {
		for _, d := range f.Decorators() {
			p.DecList = append(p.DecList, d.String())
		}
	}
	if opts.advice && f.AdviceMap().Len() > 0 {
		p.Advice = make(map[string]string, f.AdviceMap().Len())
		for _, k := range f.AdviceMap().Keys() {
			v, _ := f.AdviceMap().Get(k)
			p.Advice[k.String()] = hex.EncodeToString(v)
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func idsOf(ids []mast.NodeID) []uint32 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

func decIDsOf(ids []mast.DecoratorID) []uint32 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}
