package testkit

import (
	"fmt"
	"math/rand/v2"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
)

// RandomOptions shapes RandomForest.
type RandomOptions struct {
	Nodes        int     // nodes to add
	Decorators   int     // decorators to add before any node
	DecorateRate float64 // chance a node or operation gets a decorator
	RootRate     float64 // chance a node is made a root
	Externals    []digest.Digest
}

// RandomForest builds a forest through the public constructors. step, when
// non-nil, runs after every insertion; a non-nil error aborts the build.
func RandomForest(rng *rand.Rand, opts RandomOptions, step func(*mast.Forest) error) (*mast.Forest, error) {
	f := mast.NewForest()
	for i := range opts.Decorators {
		var d mast.Decorator
		switch i % 3 {
		case 0:
			d = mast.NewAsmOp(&mast.Location{Path: "lib.masm", Start: uint32(i), End: uint32(i + 4)}, "proc", "add", uint8(i%5), false)
		case 1:
			d = mast.DebugStackTopN(uint8(i))
		default:
			d = mast.Trace{ID: uint32(i)}
		}
		if _, err := f.AddDecorator(d); err != nil {
			return nil, err
		}
	}

	pickDecorators := func() []mast.DecoratorID {
		if opts.Decorators == 0 || rng.Float64() >= opts.DecorateRate {
			return nil
		}
		return []mast.DecoratorID{mast.DecoratorID(rng.IntN(opts.Decorators))}
	}
	pickNode := func() mast.NodeID { return mast.NodeID(rng.IntN(f.NumNodes())) }

	for f.NumNodes() < opts.Nodes {
		var (
			id  mast.NodeID
			err error
		)
		kind := rng.IntN(8)
		if f.NumNodes() == 0 {
			kind = 0
		}
		switch kind {
		case 0, 1:
			id, err = f.AddBlock(randomOps(rng), randomBlockDecorators(rng, opts))
		case 2:
			id, err = f.AddJoin(pickNode(), pickNode())
		case 3:
			id, err = f.AddSplit(pickNode(), pickNode())
		case 4:
			id, err = f.AddLoop(pickNode())
		case 5:
			if rng.IntN(2) == 0 {
				id, err = f.AddCall(pickNode())
			} else {
				id, err = f.AddSyscall(pickNode())
			}
		case 6:
			if rng.IntN(2) == 0 {
				id, err = f.AddDyn()
			} else {
				id, err = f.AddDynCall()
			}
		case 7:
			if len(opts.Externals) == 0 {
				continue
			}
			id, err = f.AddExternal(opts.Externals[rng.IntN(len(opts.Externals))])
		}
		if err != nil {
			return nil, fmt.Errorf("add node %d: %w", f.NumNodes(), err)
		}
		if kind != 0 && kind != 1 {
			if before := pickDecorators(); before != nil {
				if err := replaceWithDecorated(f, id, before); err != nil {
					return nil, err
				}
			}
		}
		if rng.Float64() < opts.RootRate {
			f.MakeRoot(id)
		}
		if step != nil {
			if err := step(f); err != nil {
				return nil, err
			}
		}
	}
	if len(f.Roots()) == 0 && f.NumNodes() > 0 {
		f.MakeRoot(mast.NodeID(f.NumNodes() - 1))
	}
	return f, nil
}

// replaceWithDecorated appends a decorated copy of id; the forest is
// append-only so the plain node stays behind as an unreferenced sibling.
func replaceWithDecorated(f *mast.Forest, id mast.NodeID, before []mast.DecoratorID) error {
	_, err := f.AddNode(mast.WithBeforeEnter(f.Node(id), before))
	return err
}

var plainOpcodes = []mast.Opcode{
	mast.OpNoop, mast.OpAdd, mast.OpMul, mast.OpSwap, mast.OpDrop, mast.OpPad,
	mast.OpEq, mast.OpU32Add, mast.OpMLoad, mast.OpHPerm,
}

func randomOps(rng *rand.Rand) []mast.Operation {
	n := 1 + rng.IntN(4)
	ops := make([]mast.Operation, n)
	for i := range ops {
		switch rng.IntN(6) {
		case 0:
			ops[i] = mast.Push(rng.Uint64N(16))
		case 1:
			ops[i] = mast.Assert(uint32(rng.IntN(3)))
		case 2:
			ops[i] = mast.Dup(uint8(rng.IntN(4)))
		default:
			ops[i] = mast.Op(plainOpcodes[rng.IntN(len(plainOpcodes))])
		}
	}
	return ops
}

func randomBlockDecorators(rng *rand.Rand, opts RandomOptions) []mast.DecoratedOp {
	if opts.Decorators == 0 || rng.Float64() >= opts.DecorateRate {
		return nil
	}
	return []mast.DecoratedOp{{OpIndex: 0, Decorator: mast.DecoratorID(rng.IntN(opts.Decorators))}}
}
