package mast

import (
	"cmp"
	"encoding/binary"
	"slices"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// DecoratedOp attaches a decorator to the operation at OpIndex. The decorator
// executes before that operation.
type DecoratedOp struct {
	OpIndex   int
	Decorator DecoratorID
}

// BasicBlockNode is a straight-line sequence of operations. It is the only leaf
// variant with a computed digest.
type BasicBlockNode struct {
	ops        []Operation
	decorators []DecoratedOp
	digest     digest.Digest
}

// NewBasicBlock validates ops and decorators and computes the block digest.
// Decorators are kept in operation order; decorators on the same operation
// keep their relative order.
func NewBasicBlock(ops []Operation, decorators []DecoratedOp) (BasicBlockNode, error) {
	if len(ops) == 0 {
		return BasicBlockNode{}, &ForestError{Kind: ErrEmptyBasicBlock}
	}
	for i, op := range ops {
		if err := op.validate(); err != nil {
			return BasicBlockNode{}, &ForestError{Kind: ErrInvalidOperation, OpIndex: uint64(i), Err: err}
		}
	}
	for _, d := range decorators {
		if d.OpIndex < 0 || d.OpIndex >= len(ops) {
			return BasicBlockNode{}, &ForestError{
				Kind:    ErrDecoratorOpIndexOutOfBounds,
				OpIndex: uint64(max(d.OpIndex, 0)),
				Limit:   uint64(len(ops)),
			}
		}
	}
	decs := slices.Clone(decorators)
	slices.SortStableFunc(decs, func(a, b DecoratedOp) int { return cmp.Compare(a.OpIndex, b.OpIndex) })
	ops = slices.Clone(ops)
	return BasicBlockNode{ops: ops, decorators: decs, digest: blockDigest(ops)}, nil
}

// blockDigest hashes the operation sequence. Immediates of class ImmTamper are
// left out: they do not change execution.
func blockDigest(ops []Operation) digest.Digest {
	h := digest.NewHasher(DomainBlock)
	h.WriteUint64(uint64(len(ops)))
	var imm [8]byte
	for _, op := range ops {
		_, _ = h.Write([]byte{byte(op.Op)})
		if op.Op.ImmediateClass() != ImmDigest {
			continue
		}
		binary.LittleEndian.PutUint64(imm[:], op.Imm)
		_, _ = h.Write(imm[:op.Op.ImmediateWidth()])
	}
	return h.Sum()
}

func (BasicBlockNode) Kind() NodeKind             { return KindBlock }
func (n BasicBlockNode) Digest() digest.Digest    { return n.digest }
func (BasicBlockNode) Children() []NodeID         { return nil }
func (BasicBlockNode) BeforeEnter() []DecoratorID { return nil }
func (BasicBlockNode) AfterExit() []DecoratorID   { return nil }
func (BasicBlockNode) isNode()                    {}

// Operations returns the block's operations. The slice must not be modified.
func (n BasicBlockNode) Operations() []Operation { return n.ops }

// NumOperations returns the number of operations in the block.
func (n BasicBlockNode) NumOperations() int { return len(n.ops) }

// DecoratedOps returns the (operation index, decorator) pairs in operation order.
// The slice must not be modified.
func (n BasicBlockNode) DecoratedOps() []DecoratedOp { return n.decorators }

func (n BasicBlockNode) Decorators() []DecoratorID {
	if len(n.decorators) == 0 {
		return nil
	}
	out := make([]DecoratorID, len(n.decorators))
	for i, d := range n.decorators {
		out[i] = d.Decorator
	}
	return out
}
