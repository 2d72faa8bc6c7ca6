package mastbin

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/program"
	"github.com/obellish/vmm-sub002/internal/testkit"
)

// header (8) + node count (4)
const nodeTableStart = 12

func nodeOffset(i int) int { return nodeTableStart + i*(8+digestLen) }

// richForest uses every node variant, every decorator variant and the advice map.
func richForest(t *testing.T) *mast.Forest {
	t.Helper()
	f := mast.NewForest()
	must := func(id mast.NodeID, err error) mast.NodeID {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	mustDec := func(d mast.Decorator) mast.DecoratorID {
		t.Helper()
		id, err := f.AddDecorator(d)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	asm := mustDec(mast.NewAsmOp(&mast.Location{Path: "std/math.masm", Start: 10, End: 20}, "std::math::add", "add", 1, false))
	asmNoLoc := mustDec(mast.NewAsmOp(nil, "std::math::add", "mul", 2, true))
	stack := mustDec(mast.DebugStack())
	top := mustDec(mast.DebugStackTopN(4))
	mem := mustDec(mast.DebugMem())
	memRange := mustDec(mast.DebugMemRange(8, 16))
	locals := mustDec(mast.DebugLocals(1, 3, 5))
	tr := mustDec(mast.Trace{ID: 42})

	a := must(f.AddBlock(
		[]mast.Operation{mast.Push(1 << 40), mast.Op(mast.OpAdd), mast.Assert(7), mast.Dup(3), mast.Emit(9)},
		[]mast.DecoratedOp{{OpIndex: 0, Decorator: asm}, {OpIndex: 1, Decorator: asmNoLoc}, {OpIndex: 4, Decorator: tr}},
	))
	b := must(f.AddBlock([]mast.Operation{mast.MovUp(2), mast.MovDn(5), mast.U32Assert2(1), mast.MpVerify(3)}, nil))
	join := must(f.AddJoin(a, b))
	split := must(f.AddSplit(b, a))
	loop := must(f.AddLoop(join))
	call := must(f.AddCall(split))
	sys := must(f.AddSyscall(loop))
	dyn := must(f.AddDyn())
	dyncall := must(f.AddDynCall())
	ext := must(f.AddExternal(digest.Hash([]byte("elsewhere"))))
	decorated := must(f.AddNode(mast.WithAfterExit(mast.WithBeforeEnter(f.Node(call), []mast.DecoratorID{stack, top}), []mast.DecoratorID{mem, memRange, locals})))
	root := must(f.AddJoin(decorated, sys))
	root = must(f.AddJoin(root, dyn))
	root = must(f.AddJoin(root, dyncall))
	root = must(f.AddJoin(root, ext))

	f.MakeRoot(root)
	f.MakeRoot(a)
	f.AdviceMap().Insert(digest.Hash([]byte("k1")), []byte{1, 2, 3})
	f.AdviceMap().Insert(digest.Hash([]byte("k2")), nil)
	return f
}

func TestRoundTripRichForest(t *testing.T) {
	f := richForest(t)
	data, err := MarshalForest(f)
	if err != nil {
		t.Fatalf("MarshalForest: %v", err)
	}
	got, err := DecodeForest(data)
	if err != nil {
		t.Fatalf("DecodeForest: %v", err)
	}
	if !got.Equal(f) {
		t.Fatalf("decoded forest differs from the original")
	}
	again, err := MarshalForest(got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Fatalf("re-encoding is not byte-identical")
	}
}

func TestRoundTripRandomForests(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewPCG(seed, 1))
		f, err := testkit.RandomForest(rng, testkit.RandomOptions{
			Nodes:        50,
			Decorators:   5,
			DecorateRate: 0.4,
			RootRate:     0.2,
			Externals:    []digest.Digest{digest.Hash([]byte("x")), digest.Hash([]byte("y"))},
		}, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		var buf bytes.Buffer
		if err := EncodeForest(&buf, f); err != nil {
			t.Fatalf("seed %d: encode: %v", seed, err)
		}
		a, err := ReadArtifact(&buf)
		if err != nil {
			t.Fatalf("seed %d: decode: %v", seed, err)
		}
		if a.Kind != KindForest || a.Program != nil {
			t.Fatalf("seed %d: unexpected artifact kind %s", seed, a.Kind)
		}
		if !a.Forest.Equal(f) {
			t.Fatalf("seed %d: round trip changed the forest", seed)
		}
		if err := testkit.CheckForestInvariants(a.Forest); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
	}
}

func TestRoundTripEmptyForest(t *testing.T) {
	data, err := MarshalForest(mast.NewForest())
	if err != nil {
		t.Fatal(err)
	}
	f, err := DecodeForest(data)
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsEmpty() {
		t.Fatalf("expected empty forest")
	}
}

func TestRoundTripProgram(t *testing.T) {
	f := richForest(t)
	kernel, err := program.NewKernel([]digest.Digest{digest.Hash([]byte("k")), digest.Hash([]byte("j"))})
	if err != nil {
		t.Fatal(err)
	}
	p, err := program.NewProgramWithKernel(f, f.Roots()[0], kernel)
	if err != nil {
		t.Fatal(err)
	}
	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeProgram(data)
	if err != nil {
		t.Fatalf("DecodeProgram: %v", err)
	}
	if got.Hash() != p.Hash() || got.Entrypoint() != p.Entrypoint() || !got.Kernel().Equal(kernel) {
		t.Fatalf("program changed: %s vs %s", got.Info(), p.Info())
	}
	if !got.Forest().Equal(f) {
		t.Fatalf("program forest changed")
	}

	// a program artifact still yields its forest
	if _, err := DecodeForest(data); err != nil {
		t.Fatalf("DecodeForest on a program: %v", err)
	}
}

func TestDecodeProgramRejectsForest(t *testing.T) {
	data, err := MarshalForest(richForest(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeProgram(data); !IsKind(err, ErrWrongArtifactKind) {
		t.Fatalf("expected WrongArtifactKind, got %v", err)
	}
}

func TestStringTableDeduplicates(t *testing.T) {
	tbl := decoratorTable{strings: NewStringTable()}
	loc := &mast.Location{Path: "lib.masm", Start: 1, End: 2}
	for _, op := range []string{"add", "add", "mul"} {
		if err := tbl.add(mast.NewAsmOp(loc, "lib::f", op, 1, false)); err != nil {
			t.Fatal(err)
		}
	}
	// "", "lib::f", "add", "lib.masm", "mul"
	if got := tbl.strings.Len(); got != 5 {
		t.Fatalf("string table has %d entries: %q", got, tbl.strings.Strings())
	}
	id, _ := tbl.strings.Intern("lib::f")
	if s, ok := tbl.strings.Lookup(id); !ok || s != "lib::f" {
		t.Fatalf("Lookup(%d) = %q, %v", id, s, ok)
	}
}

func TestNodeWordPacking(t *testing.T) {
	w := packPair(tagSplit, mast.NodeID(idMask), 5)
	a, b := unpackPair(w)
	if wordTag(w) != tagSplit || a != idMask || b != 5 {
		t.Fatalf("pair round trip: tag %d, %d, %d", wordTag(w), a, b)
	}
	one := packOne(tagCall, 1<<31)
	payload, ok := unpackOne(one)
	if wordTag(one) != tagCall || payload != 1<<31 || !ok {
		t.Fatalf("single round trip: tag %d, %d, %v", wordTag(one), payload, ok)
	}
}

func encodeSmall(t *testing.T) []byte {
	t.Helper()
	f := mast.NewForest()
	a, err := f.AddBlock([]mast.Operation{mast.Op(mast.OpAdd)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	j, err := f.AddJoin(a, a)
	if err != nil {
		t.Fatal(err)
	}
	f.MakeRoot(j)
	data, err := MarshalForest(f)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeRejectsCorruptStreams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		kind   ErrorKind
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrBadMagic},
		{"future version", func(b []byte) []byte { b[5] = 9; return b }, ErrUnsupportedVersion},
		{"unknown artifact kind", func(b []byte) []byte { b[7] = 7; return b }, ErrInvalidValue},
		{"unknown node tag", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[nodeOffset(0):], uint64(9)<<tagShift)
			return b
		}, ErrInvalidValue},
		{"forward child reference", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[nodeOffset(1):], packPair(tagJoin, 1, 0))
			return b
		}, ErrNodeIDOverflow},
		{"tampered digest", func(b []byte) []byte { b[nodeOffset(0)+8] ^= 0xff; return b }, ErrDigestMismatch},
		{"unknown opcode", func(b []byte) []byte {
			// block data: u32 length, u32 op count, opcode
			b[nodeOffset(2)+4+4] = 0xff
			return b
		}, ErrInvalidValue},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0) }, ErrTrailingBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(encodeSmall(t))
			_, err := Decode(data)
			if !IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestDecodeRejectsEveryTruncation(t *testing.T) {
	data := encodeSmall(t)
	for n := 0; n < len(data); n++ {
		if _, err := Decode(data[:n]); err == nil {
			t.Fatalf("prefix of %d/%d bytes decoded without error", n, len(data))
		}
	}
}

func TestDecodeRejectsHugeCounts(t *testing.T) {
	data := encodeSmall(t)
	binary.LittleEndian.PutUint32(data[8:], 0xffffffff)
	if _, err := Decode(data); !IsKind(err, ErrUnexpectedEOF) {
		t.Fatalf("expected UnexpectedEOF for oversized node count, got %v", err)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	f := richForest(t)
	data, err := MarshalForest(f)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out", "lib"+KindForest.Extension())
	if err := WriteFile(path, data); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	a, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !a.Forest.Equal(f) {
		t.Fatalf("file round trip changed the forest")
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".mast-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files left behind: %v", matches)
	}
}
