package mast

import (
	"fmt"
	"slices"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// NodeKind identifies a node variant.
type NodeKind uint8

const (
	KindJoin NodeKind = iota + 1
	KindSplit
	KindLoop
	KindCall
	KindDyn
	KindExternal
	KindBlock
)

func (k NodeKind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindSplit:
		return "split"
	case KindLoop:
		return "loop"
	case KindCall:
		return "call"
	case KindDyn:
		return "dyn"
	case KindExternal:
		return "external"
	case KindBlock:
		return "block"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Hash domains of the control-flow nodes.
const (
	DomainBlock   digest.Domain = 0
	DomainJoin    digest.Domain = 0b0101_0111
	DomainSplit   digest.Domain = 0b0101_1000
	DomainLoop    digest.Domain = 0b0101_1001
	DomainCall    digest.Domain = 0b0101_1010
	DomainSyscall digest.Domain = 0b0101_1011
	DomainDyn     digest.Domain = 0b0101_1100
	DomainDynCall digest.Domain = 0b0101_1101
)

// Node is one of the seven node variants: JoinNode, SplitNode, LoopNode,
// CallNode, DynNode, ExternalNode, BasicBlockNode. Nodes are immutable values;
// the With* helpers return modified copies.
type Node interface {
	Kind() NodeKind
	// Digest is the MAST root of the node, computed at construction.
	Digest() digest.Digest
	// Children lists referenced node ids in a fixed order.
	Children() []NodeID
	// BeforeEnter lists decorators executed before the node. Always empty for blocks.
	BeforeEnter() []DecoratorID
	// AfterExit lists decorators executed after the node. Always empty for blocks.
	AfterExit() []DecoratorID
	// Decorators lists every decorator id the node references.
	Decorators() []DecoratorID

	isNode()
}

// nodeDecorators carries the before/after lists shared by every non-block variant.
type nodeDecorators struct {
	beforeEnter []DecoratorID
	afterExit   []DecoratorID
}

func (d nodeDecorators) BeforeEnter() []DecoratorID { return d.beforeEnter }
func (d nodeDecorators) AfterExit() []DecoratorID   { return d.afterExit }

func (d nodeDecorators) Decorators() []DecoratorID {
	if len(d.beforeEnter)+len(d.afterExit) == 0 {
		return nil
	}
	out := make([]DecoratorID, 0, len(d.beforeEnter)+len(d.afterExit))
	out = append(out, d.beforeEnter...)
	return append(out, d.afterExit...)
}

// WithBeforeEnter returns a copy of n with its before-enter list replaced.
// Blocks carry decorators per operation and are returned unchanged.
func WithBeforeEnter(n Node, ids []DecoratorID) Node {
	return withDecorators(n, slices.Clone(ids), n.AfterExit())
}

// WithAfterExit returns a copy of n with its after-exit list replaced.
// Blocks are returned unchanged.
func WithAfterExit(n Node, ids []DecoratorID) Node {
	return withDecorators(n, n.BeforeEnter(), slices.Clone(ids))
}

func withDecorators(n Node, before, after []DecoratorID) Node {
	d := nodeDecorators{beforeEnter: before, afterExit: after}
	switch v := n.(type) {
	case JoinNode:
		v.nodeDecorators = d
		return v
	case SplitNode:
		v.nodeDecorators = d
		return v
	case LoopNode:
		v.nodeDecorators = d
		return v
	case CallNode:
		v.nodeDecorators = d
		return v
	case DynNode:
		v.nodeDecorators = d
		return v
	case ExternalNode:
		v.nodeDecorators = d
		return v
	case BasicBlockNode:
		return v
	default:
		panic(fmt.Sprintf("mast: unknown node type %T", n))
	}
}

// checkChild verifies that id was allocated by f before the node being built.
// Because nodes are never mutated, this is enough to keep the forest acyclic.
func checkChild(f *Forest, id NodeID) (digest.Digest, error) {
	if id.Index() >= f.NumNodes() {
		return digest.Zero, &ForestError{Kind: ErrNodeIDOverflow, Node: id, Limit: uint64(f.NumNodes())}
	}
	return f.nodes[id].Digest(), nil
}
