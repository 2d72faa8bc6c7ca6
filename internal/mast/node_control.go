package mast

import "github.com/obellish/vmm-sub002/internal/digest"

// JoinNode executes first, then second.
type JoinNode struct {
	nodeDecorators
	first, second NodeID
	digest        digest.Digest
}

// NewJoin builds a join of two nodes already present in f.
func NewJoin(first, second NodeID, f *Forest) (JoinNode, error) {
	a, err := checkChild(f, first)
	if err != nil {
		return JoinNode{}, err
	}
	b, err := checkChild(f, second)
	if err != nil {
		return JoinNode{}, err
	}
	return JoinNode{
		first:  first,
		second: second,
		digest: digest.MergeInDomain([2]digest.Digest{a, b}, DomainJoin),
	}, nil
}

func (JoinNode) Kind() NodeKind          { return KindJoin }
func (n JoinNode) Digest() digest.Digest { return n.digest }
func (n JoinNode) First() NodeID         { return n.first }
func (n JoinNode) Second() NodeID        { return n.second }
func (n JoinNode) Children() []NodeID    { return []NodeID{n.first, n.second} }
func (JoinNode) isNode()                 {}

// SplitNode pops a condition and executes onTrue or onFalse.
type SplitNode struct {
	nodeDecorators
	onTrue, onFalse NodeID
	digest          digest.Digest
}

// NewSplit builds a conditional over two nodes already present in f.
func NewSplit(onTrue, onFalse NodeID, f *Forest) (SplitNode, error) {
	a, err := checkChild(f, onTrue)
	if err != nil {
		return SplitNode{}, err
	}
	b, err := checkChild(f, onFalse)
	if err != nil {
		return SplitNode{}, err
	}
	return SplitNode{
		onTrue:  onTrue,
		onFalse: onFalse,
		digest:  digest.MergeInDomain([2]digest.Digest{a, b}, DomainSplit),
	}, nil
}

func (SplitNode) Kind() NodeKind          { return KindSplit }
func (n SplitNode) Digest() digest.Digest { return n.digest }
func (n SplitNode) OnTrue() NodeID        { return n.onTrue }
func (n SplitNode) OnFalse() NodeID       { return n.onFalse }
func (n SplitNode) Children() []NodeID    { return []NodeID{n.onTrue, n.onFalse} }
func (SplitNode) isNode()                 {}

// LoopNode executes body while the top of the stack is one.
type LoopNode struct {
	nodeDecorators
	body   NodeID
	digest digest.Digest
}

// NewLoop builds a loop around a node already present in f.
func NewLoop(body NodeID, f *Forest) (LoopNode, error) {
	b, err := checkChild(f, body)
	if err != nil {
		return LoopNode{}, err
	}
	return LoopNode{
		body:   body,
		digest: digest.MergeInDomain([2]digest.Digest{b, digest.Zero}, DomainLoop),
	}, nil
}

func (LoopNode) Kind() NodeKind          { return KindLoop }
func (n LoopNode) Digest() digest.Digest { return n.digest }
func (n LoopNode) Body() NodeID          { return n.body }
func (n LoopNode) Children() []NodeID    { return []NodeID{n.body} }
func (LoopNode) isNode()                 {}
