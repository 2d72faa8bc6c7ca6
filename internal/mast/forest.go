package mast

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// Forest is the append-only arena owning nodes, decorators, procedure roots and
// the advice map. It is the only place NodeID and DecoratorID values are minted.
//
// A Forest is mutated only by its builder. Once handed to Merge or wrapped in a
// program it must be treated as read-only; concurrent readers need no locking.
type Forest struct {
	nodes      []Node
	decorators []Decorator
	roots      []NodeID
	rootSet    map[NodeID]struct{}
	advice     AdviceMap

	// capacity limits, lowered only by tests
	maxNodes      int
	maxDecorators uint64
}

// NewForest creates an empty forest.
func NewForest() *Forest {
	return &Forest{
		rootSet:       make(map[NodeID]struct{}),
		maxNodes:      MaxNodes,
		maxDecorators: MaxDecorators,
	}
}

// AddNode appends node and returns its id. Child ids are not validated here;
// the node constructors do that against the same forest. Decorator references
// must already exist.
func (f *Forest) AddNode(node Node) (NodeID, error) {
	if len(f.nodes) >= f.maxNodes {
		return 0, &ForestError{Kind: ErrTooManyNodes}
	}
	for _, d := range node.Decorators() {
		if d.Index() >= len(f.decorators) {
			return 0, &ForestError{Kind: ErrDecoratorIDOverflow, Decorator: d, Limit: uint64(len(f.decorators))}
		}
	}
	id, err := safecast.Conv[uint32](len(f.nodes))
	if err != nil {
		return 0, &ForestError{Kind: ErrTooManyNodes}
	}
	f.nodes = append(f.nodes, node)
	return NodeID(id), nil
}

// AddDecorator appends d and returns its id.
func (f *Forest) AddDecorator(d Decorator) (DecoratorID, error) {
	if uint64(len(f.decorators)) >= f.maxDecorators {
		return 0, &ForestError{Kind: ErrTooManyDecorators}
	}
	id, err := safecast.Conv[uint32](len(f.decorators))
	if err != nil {
		return 0, &ForestError{Kind: ErrTooManyDecorators}
	}
	f.decorators = append(f.decorators, d)
	return DecoratorID(id), nil
}

// MakeRoot marks id as a procedure entry point. Marking a root twice is a no-op.
// It panics if id was not allocated by f.
func (f *Forest) MakeRoot(id NodeID) {
	if id.Index() >= len(f.nodes) {
		panic(fmt.Sprintf("mast: MakeRoot(%s) on a forest of %d nodes", id, len(f.nodes)))
	}
	if _, ok := f.rootSet[id]; ok {
		return
	}
	f.rootSet[id] = struct{}{}
	f.roots = append(f.roots, id)
}

// Node returns the node with the given id. It panics on ids from another forest
// that are out of range.
func (f *Forest) Node(id NodeID) Node { return f.nodes[id] }

// Decorator returns the decorator with the given id. It panics when out of range.
func (f *Forest) Decorator(id DecoratorID) Decorator { return f.decorators[id] }

// NodeDigest is shorthand for f.Node(id).Digest().
func (f *Forest) NodeDigest(id NodeID) digest.Digest { return f.nodes[id].Digest() }

// Nodes returns all nodes in id order. The slice must not be modified.
func (f *Forest) Nodes() []Node { return f.nodes }

// Decorators returns all decorators in id order. The slice must not be modified.
func (f *Forest) Decorators() []Decorator { return f.decorators }

// NumNodes returns the number of nodes.
func (f *Forest) NumNodes() int { return len(f.nodes) }

// NumDecorators returns the number of decorators.
func (f *Forest) NumDecorators() int { return len(f.decorators) }

// IsEmpty reports whether the forest has no nodes.
func (f *Forest) IsEmpty() bool { return len(f.nodes) == 0 }

// Roots returns the procedure roots in the order they were marked.
func (f *Forest) Roots() []NodeID { return slices.Clone(f.roots) }

// IsProcedureRoot reports whether id is a procedure root.
func (f *Forest) IsProcedureRoot(id NodeID) bool {
	_, ok := f.rootSet[id]
	return ok
}

// ProcedureDigests returns the MAST roots of all procedures, in root order.
func (f *Forest) ProcedureDigests() []digest.Digest {
	out := make([]digest.Digest, len(f.roots))
	for i, id := range f.roots {
		out[i] = f.nodes[id].Digest()
	}
	return out
}

// FindProcedureRoot returns the first procedure root with the given digest.
func (f *Forest) FindProcedureRoot(d digest.Digest) (NodeID, bool) {
	for _, id := range f.roots {
		if f.nodes[id].Digest() == d {
			return id, true
		}
	}
	return 0, false
}

// AdviceMap returns the forest's advice map for reading or, while building,
// for inserting entries.
func (f *Forest) AdviceMap() *AdviceMap { return &f.advice }

// AddJoin constructs a join node and adds it.
func (f *Forest) AddJoin(first, second NodeID) (NodeID, error) {
	n, err := NewJoin(first, second, f)
	if err != nil {
		return 0, err
	}
	return f.AddNode(n)
}

// AddSplit constructs a split node and adds it.
func (f *Forest) AddSplit(onTrue, onFalse NodeID) (NodeID, error) {
	n, err := NewSplit(onTrue, onFalse, f)
	if err != nil {
		return 0, err
	}
	return f.AddNode(n)
}

// AddLoop constructs a loop node and adds it.
func (f *Forest) AddLoop(body NodeID) (NodeID, error) {
	n, err := NewLoop(body, f)
	if err != nil {
		return 0, err
	}
	return f.AddNode(n)
}

// AddCall constructs a call node and adds it.
func (f *Forest) AddCall(callee NodeID) (NodeID, error) {
	n, err := NewCall(callee, f)
	if err != nil {
		return 0, err
	}
	return f.AddNode(n)
}

// AddSyscall constructs a syscall node and adds it.
func (f *Forest) AddSyscall(callee NodeID) (NodeID, error) {
	n, err := NewSyscall(callee, f)
	if err != nil {
		return 0, err
	}
	return f.AddNode(n)
}

// AddDyn adds a dynamic exec node.
func (f *Forest) AddDyn() (NodeID, error) { return f.AddNode(NewDyn()) }

// AddDynCall adds a dynamic call node.
func (f *Forest) AddDynCall() (NodeID, error) { return f.AddNode(NewDynCall()) }

// AddExternal adds a placeholder for a procedure defined elsewhere.
func (f *Forest) AddExternal(root digest.Digest) (NodeID, error) {
	return f.AddNode(NewExternal(root))
}

// AddBlock constructs a basic block and adds it.
func (f *Forest) AddBlock(ops []Operation, decorators []DecoratedOp) (NodeID, error) {
	n, err := NewBasicBlock(ops, decorators)
	if err != nil {
		return 0, err
	}
	return f.AddNode(n)
}

// Equal reports structural equality: same nodes in the same order (kind,
// digest, children, decorator references), decorators with equal content,
// the same roots and the same advice map.
func (f *Forest) Equal(other *Forest) bool {
	if len(f.nodes) != len(other.nodes) || len(f.decorators) != len(other.decorators) {
		return false
	}
	if !slices.Equal(f.roots, other.roots) || !f.advice.Equal(&other.advice) {
		return false
	}
	for i, d := range f.decorators {
		if DecoratorContentHash(d) != DecoratorContentHash(other.decorators[i]) {
			return false
		}
	}
	for i, n := range f.nodes {
		if !nodesEqual(n, other.nodes[i]) {
			return false
		}
	}
	return true
}

func nodesEqual(a, b Node) bool {
	if a.Kind() != b.Kind() || a.Digest() != b.Digest() {
		return false
	}
	if !slices.Equal(a.Children(), b.Children()) ||
		!slices.Equal(a.BeforeEnter(), b.BeforeEnter()) ||
		!slices.Equal(a.AfterExit(), b.AfterExit()) {
		return false
	}
	switch av := a.(type) {
	case BasicBlockNode:
		bv := b.(BasicBlockNode)
		return slices.Equal(av.ops, bv.ops) && slices.Equal(av.decorators, bv.decorators)
	case CallNode:
		return av.isSyscall == b.(CallNode).isSyscall
	case DynNode:
		return av.isDynCall == b.(DynNode).isDynCall
	}
	return true
}
