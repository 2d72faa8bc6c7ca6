package mastbin

import (
	"fmt"
	"io"

	"fortio.org/safecast"

	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/program"
)

// EncodeForest writes f as a forest artifact.
func EncodeForest(w io.Writer, f *mast.Forest) error {
	data, err := MarshalForest(f)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// EncodeProgram writes p as a program artifact.
func EncodeProgram(w io.Writer, p *program.Program) error {
	data, err := MarshalProgram(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// MarshalForest returns the encoding of f.
func MarshalForest(f *mast.Forest) ([]byte, error) {
	var out writer
	if err := encode(&out, KindForest, f); err != nil {
		return nil, err
	}
	return out.bytes(), nil
}

// MarshalProgram returns the encoding of p: its forest followed by the
// entrypoint and kernel.
func MarshalProgram(p *program.Program) ([]byte, error) {
	var out writer
	if err := encode(&out, KindProgram, p.Forest()); err != nil {
		return nil, err
	}
	out.u32(uint32(p.Entrypoint()))
	procs := p.Kernel().Procedures()
	if err := out.count(len(procs), "kernel procedures"); err != nil {
		return nil, err
	}
	for _, d := range procs {
		out.digest(d)
	}
	return out.bytes(), nil
}

func encode(out *writer, kind Kind, f *mast.Forest) error {
	out.buf.Write(Magic[:])
	out.buf.Write(Version[:])
	out.u8(uint8(kind))

	var blocks writer
	nodes := f.Nodes()
	if err := out.count(len(nodes), "nodes"); err != nil {
		return err
	}
	for i, n := range nodes {
		word, err := nodeWord(n, &blocks)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		out.u64(word)
		out.digest(n.Digest())
	}
	if err := out.blob(blocks.bytes(), "block data"); err != nil {
		return err
	}

	decs := decoratorTable{strings: NewStringTable()}
	for i, d := range f.Decorators() {
		if err := decs.add(d); err != nil {
			return fmt.Errorf("decorator %d: %w", i, err)
		}
	}
	if err := out.count(f.NumDecorators(), "decorators"); err != nil {
		return err
	}
	out.buf.Write(decs.info.bytes())
	if err := out.blob(decs.data.bytes(), "decorator data"); err != nil {
		return err
	}

	strs := decs.strings.Strings()
	if err := out.count(len(strs), "strings"); err != nil {
		return err
	}
	for _, s := range strs {
		if err := out.blob([]byte(s), "string bytes"); err != nil {
			return err
		}
	}

	if err := out.count(len(nodes), "nodes"); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := writeIDs(out, n.BeforeEnter()); err != nil {
			return err
		}
		if err := writeIDs(out, n.AfterExit()); err != nil {
			return err
		}
	}

	advice := f.AdviceMap()
	keys := advice.Keys()
	if err := out.count(len(keys), "advice entries"); err != nil {
		return err
	}
	for _, k := range keys {
		v, _ := advice.Get(k)
		out.digest(k)
		if err := out.blob(v, "advice value"); err != nil {
			return err
		}
	}

	roots := f.Roots()
	if err := out.count(len(roots), "roots"); err != nil {
		return err
	}
	for _, r := range roots {
		out.u32(uint32(r))
	}
	return nil
}

func writeIDs(out *writer, ids []mast.DecoratorID) error {
	if err := out.count(len(ids), "decorator ids"); err != nil {
		return err
	}
	for _, id := range ids {
		out.u32(uint32(id))
	}
	return nil
}

// nodeWord packs n into its table word, appending block bodies to blocks.
func nodeWord(n mast.Node, blocks *writer) (uint64, error) {
	switch v := n.(type) {
	case mast.JoinNode:
		return packPair(tagJoin, v.First(), v.Second()), nil
	case mast.SplitNode:
		return packPair(tagSplit, v.OnTrue(), v.OnFalse()), nil
	case mast.LoopNode:
		return packOne(tagLoop, uint32(v.Body())), nil
	case mast.CallNode:
		if v.IsSyscall() {
			return packOne(tagSyscall, uint32(v.Callee())), nil
		}
		return packOne(tagCall, uint32(v.Callee())), nil
	case mast.DynNode:
		if v.IsDynCall() {
			return packOne(tagDynCall, 0), nil
		}
		return packOne(tagDyn, 0), nil
	case mast.ExternalNode:
		return packOne(tagExternal, 0), nil
	case mast.BasicBlockNode:
		offset, err := safecast.Conv[uint32](blocks.len())
		if err != nil {
			return 0, fmt.Errorf("block data too large: %w", err)
		}
		if err := writeBlock(blocks, v); err != nil {
			return 0, err
		}
		return packOne(tagBlock, offset), nil
	default:
		return 0, fmt.Errorf("unknown node type %T", n)
	}
}

func writeBlock(w *writer, b mast.BasicBlockNode) error {
	ops := b.Operations()
	if err := w.count(len(ops), "operations"); err != nil {
		return err
	}
	for _, op := range ops {
		w.u8(uint8(op.Op))
		if width := op.Op.ImmediateWidth(); width > 0 {
			w.uint(op.Imm, width)
		}
	}
	decs := b.DecoratedOps()
	if err := w.count(len(decs), "block decorators"); err != nil {
		return err
	}
	for _, d := range decs {
		idx, err := safecast.Conv[uint32](d.OpIndex)
		if err != nil {
			return fmt.Errorf("decorator op index: %w", err)
		}
		w.u32(idx)
		w.u32(uint32(d.Decorator))
	}
	return nil
}
