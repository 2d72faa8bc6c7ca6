package mastbin

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"unicode/utf8"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/program"
)

// Artifact is a decoded stream. Program is set only for KindProgram.
type Artifact struct {
	Kind    Kind
	Forest  *mast.Forest
	Program *program.Program
}

// ReadArtifact decodes an artifact from r.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// DecodeForest decodes data and returns its forest. Program artifacts are
// accepted; their entrypoint and kernel are dropped.
func DecodeForest(data []byte) (*mast.Forest, error) {
	a, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return a.Forest, nil
}

// DecodeProgram decodes a program artifact.
func DecodeProgram(data []byte) (*program.Program, error) {
	a, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if a.Kind != KindProgram {
		return nil, &DecodeError{Kind: ErrWrongArtifactKind, Section: "header", Offset: 7, Msg: "expected program, found " + a.Kind.String()}
	}
	return a.Program, nil
}

type rawNode struct {
	word   uint64
	digest digest.Digest
	offset int
	before []mast.DecoratorID
	after  []mast.DecoratorID
}

type rawAdvice struct {
	key   digest.Digest
	value []byte
}

// stream holds the sections of an artifact before nodes are rebuilt.
type stream struct {
	kind       Kind
	nodes      []rawNode
	blocks     []byte
	blocksBase int
	decInfo    []decoratorInfo
	decData    []byte
	decBase    int
	strings    []string
	advice     []rawAdvice
	roots      []mast.NodeID
	rootsBase  int
	entrypoint mast.NodeID
	kernel     []digest.Digest
}

// Decode parses and verifies an artifact.
func Decode(data []byte) (*Artifact, error) {
	s, err := parse(data)
	if err != nil {
		return nil, err
	}
	f, err := s.build()
	if err != nil {
		return nil, err
	}
	a := &Artifact{Kind: s.kind, Forest: f}
	if s.kind == KindProgram {
		kernel, err := program.NewKernel(s.kernel)
		if err != nil {
			return nil, &DecodeError{Kind: ErrInvalidValue, Section: "program", Msg: "kernel", Err: err}
		}
		p, err := program.NewProgramWithKernel(f, s.entrypoint, kernel)
		if err != nil {
			return nil, &DecodeError{Kind: ErrInvalidValue, Section: "program", Msg: "entrypoint", Err: err}
		}
		a.Program = p
	}
	return a, nil
}

func parse(data []byte) (*stream, error) {
	r := newReader(data)
	r.section = "header"
	if magic := r.take(len(Magic)); !bytes.Equal(magic, Magic[:]) {
		return nil, &DecodeError{Kind: ErrBadMagic, Section: "header"}
	}
	if v := r.take(len(Version)); r.err == nil && !bytes.Equal(v, Version[:]) {
		return nil, &DecodeError{Kind: ErrUnsupportedVersion, Section: "header", Offset: len(Magic), Msg: fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])}
	}
	s := &stream{kind: Kind(r.u8())}
	if r.err != nil {
		return nil, r.err
	}
	if s.kind > KindProgram {
		return nil, &DecodeError{Kind: ErrInvalidValue, Section: "header", Offset: r.pos() - 1, Msg: fmt.Sprintf("artifact kind %d", s.kind)}
	}

	r.section = "nodes"
	s.nodes = make([]rawNode, r.count(8+digestLen))
	for i := range s.nodes {
		s.nodes[i].offset = r.pos()
		s.nodes[i].word = r.u64()
		s.nodes[i].digest = r.digest()
	}

	r.section = "block data"
	s.blocks = r.blob()
	s.blocksBase = r.pos() - len(s.blocks)

	r.section = "decorator info"
	s.decInfo = make([]decoratorInfo, r.count(5))
	for i := range s.decInfo {
		s.decInfo[i] = decoratorInfo{tag: r.u8(), offset: r.u32()}
		if r.err == nil && s.decInfo[i].tag >= decTagCount {
			r.off -= 5
			r.fail(ErrInvalidValue, fmt.Sprintf("decorator tag %d", s.decInfo[i].tag))
		}
	}

	r.section = "decorator data"
	s.decData = r.blob()
	s.decBase = r.pos() - len(s.decData)

	r.section = "strings"
	s.strings = make([]string, r.count(4))
	for i := range s.strings {
		b := r.blob()
		if r.err == nil && !utf8.Valid(b) {
			r.fail(ErrInvalidValue, fmt.Sprintf("string %d is not UTF-8", i))
		}
		s.strings[i] = string(b)
	}

	r.section = "node decorators"
	if n := r.count(8); r.err == nil && n != len(s.nodes) {
		r.fail(ErrInvalidValue, fmt.Sprintf("decorator lists for %d nodes, table has %d", n, len(s.nodes)))
	}
	for i := range s.nodes {
		if r.err != nil {
			break
		}
		s.nodes[i].before = readIDs(r)
		s.nodes[i].after = readIDs(r)
	}

	r.section = "advice map"
	s.advice = make([]rawAdvice, r.count(digestLen+4))
	for i := range s.advice {
		at := r.pos()
		s.advice[i] = rawAdvice{key: r.digest(), value: r.blob()}
		if r.err == nil && i > 0 && bytes.Compare(s.advice[i-1].key[:], s.advice[i].key[:]) >= 0 {
			r.off = at - r.base
			r.fail(ErrInvalidValue, "advice keys not strictly ascending")
		}
	}

	r.section = "roots"
	s.rootsBase = r.pos()
	s.roots = make([]mast.NodeID, r.count(4))
	for i := range s.roots {
		s.roots[i] = mast.NodeID(r.u32())
	}

	if s.kind == KindProgram {
		r.section = "program"
		s.entrypoint = mast.NodeID(r.u32())
		s.kernel = make([]digest.Digest, r.count(digestLen))
		for i := range s.kernel {
			s.kernel[i] = r.digest()
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() > 0 {
		return nil, &DecodeError{Kind: ErrTrailingBytes, Section: r.section, Offset: r.pos()}
	}
	return s, nil
}

func readIDs(r *reader) []mast.DecoratorID {
	n := r.count(4)
	if n == 0 {
		return nil
	}
	ids := make([]mast.DecoratorID, n)
	for i := range ids {
		ids[i] = mast.DecoratorID(r.u32())
	}
	return ids
}

func (s *stream) build() (*mast.Forest, error) {
	strs, err := stringTableFrom(s.strings)
	if err != nil {
		return nil, &DecodeError{Kind: ErrInvalidValue, Section: "strings", Msg: err.Error()}
	}

	f := mast.NewForest()
	for _, info := range s.decInfo {
		d, err := readDecorator(info, s.decData, s.decBase, strs)
		if err != nil {
			return nil, err
		}
		if _, err := f.AddDecorator(d); err != nil {
			return nil, &DecodeError{Kind: ErrInvalidValue, Section: "decorator info", Msg: "decorator", Err: err}
		}
	}

	for i := range s.nodes {
		if err := s.buildNode(f, i); err != nil {
			return nil, err
		}
	}

	for _, e := range s.advice {
		f.AdviceMap().Insert(e.key, e.value)
	}

	seen := make(map[mast.NodeID]struct{}, len(s.roots))
	for i, id := range s.roots {
		at := s.rootsBase + 4 + 4*i
		if id.Index() >= f.NumNodes() {
			return nil, &DecodeError{Kind: ErrNodeIDOverflow, Section: "roots", Offset: at, Node: id, Limit: f.NumNodes()}
		}
		if _, dup := seen[id]; dup {
			return nil, &DecodeError{Kind: ErrInvalidValue, Section: "roots", Offset: at, Msg: fmt.Sprintf("root %s listed twice", id)}
		}
		seen[id] = struct{}{}
		f.MakeRoot(id)
	}
	return f, nil
}

func (s *stream) buildNode(f *mast.Forest, i int) error {
	raw := s.nodes[i]
	self := mast.NodeID(i)
	invalid := func(msg string, err error) error {
		return &DecodeError{Kind: ErrInvalidValue, Section: "nodes", Offset: raw.offset, Node: self, Msg: msg, Err: err}
	}
	child := func(id mast.NodeID) error {
		if id.Index() >= i {
			return &DecodeError{Kind: ErrNodeIDOverflow, Section: "nodes", Offset: raw.offset, Node: self, Limit: i}
		}
		return nil
	}
	single := func() (mast.NodeID, error) {
		payload, ok := unpackOne(raw.word)
		if !ok {
			return 0, invalid(fmt.Sprintf("node word %#x", raw.word), nil)
		}
		id := mast.NodeID(payload)
		return id, child(id)
	}
	empty := func() error {
		if payload, ok := unpackOne(raw.word); !ok || payload != 0 {
			return invalid(fmt.Sprintf("node word %#x", raw.word), nil)
		}
		return nil
	}

	var (
		node mast.Node
		err  error
	)
	tag := wordTag(raw.word)
	switch tag {
	case tagJoin, tagSplit:
		a, b := unpackPair(raw.word)
		if err := child(a); err != nil {
			return err
		}
		if err := child(b); err != nil {
			return err
		}
		if tag == tagJoin {
			node, err = mast.NewJoin(a, b, f)
		} else {
			node, err = mast.NewSplit(a, b, f)
		}
	case tagLoop, tagCall, tagSyscall:
		id, cerr := single()
		if cerr != nil {
			return cerr
		}
		switch tag {
		case tagLoop:
			node, err = mast.NewLoop(id, f)
		case tagCall:
			node, err = mast.NewCall(id, f)
		default:
			node, err = mast.NewSyscall(id, f)
		}
	case tagBlock:
		offset, ok := unpackOne(raw.word)
		if !ok {
			return invalid(fmt.Sprintf("node word %#x", raw.word), nil)
		}
		node, err = s.readBlock(offset, f.NumDecorators())
		if err != nil {
			return err
		}
	case tagDyn, tagDynCall:
		if err := empty(); err != nil {
			return err
		}
		if tag == tagDyn {
			node = mast.NewDyn()
		} else {
			node = mast.NewDynCall()
		}
	case tagExternal:
		if err := empty(); err != nil {
			return err
		}
		node = mast.NewExternal(raw.digest)
	default:
		return invalid(fmt.Sprintf("node tag %d", tag), nil)
	}
	if err != nil {
		return invalid("node", err)
	}

	if len(raw.before)+len(raw.after) > 0 {
		if tag == tagBlock {
			return invalid("block with node-level decorators", nil)
		}
		for _, d := range slices.Concat(raw.before, raw.after) {
			if d.Index() >= f.NumDecorators() {
				return invalid(fmt.Sprintf("decorator %s out of range", d), nil)
			}
		}
		node = mast.WithAfterExit(mast.WithBeforeEnter(node, raw.before), raw.after)
	}

	if node.Digest() != raw.digest {
		return &DecodeError{Kind: ErrDigestMismatch, Section: "nodes", Offset: raw.offset, Node: self}
	}
	if _, err := f.AddNode(node); err != nil {
		return invalid("node", err)
	}
	return nil
}

func (s *stream) readBlock(offset uint32, numDecorators int) (mast.Node, error) {
	if int(offset) >= len(s.blocks) {
		return nil, &DecodeError{Kind: ErrUnexpectedEOF, Section: "block data", Offset: s.blocksBase + len(s.blocks)}
	}
	r := subReader(s.blocks[offset:], s.blocksBase+int(offset), "block data")

	ops := make([]mast.Operation, r.count(1))
	for i := range ops {
		code := mast.Opcode(r.u8())
		if r.err == nil && !code.Valid() {
			r.off--
			r.fail(ErrInvalidValue, fmt.Sprintf("opcode %d", uint8(code)))
		}
		ops[i] = mast.Operation{Op: code, Imm: r.uint(code.ImmediateWidth())}
	}
	decs := make([]mast.DecoratedOp, r.count(8))
	for i := range decs {
		idx := r.u32()
		id := mast.DecoratorID(r.u32())
		if r.err == nil && id.Index() >= numDecorators {
			r.fail(ErrInvalidValue, fmt.Sprintf("decorator %s out of range", id))
		}
		decs[i] = mast.DecoratedOp{OpIndex: int(idx), Decorator: id}
	}
	if r.err != nil {
		return nil, r.err
	}
	b, err := mast.NewBasicBlock(ops, decs)
	if err != nil {
		return nil, &DecodeError{Kind: ErrInvalidValue, Section: "block data", Offset: r.base, Msg: "block", Err: err}
	}
	return b, nil
}
