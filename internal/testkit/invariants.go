package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
)

// CheckForestInvariants verifies the structural invariants of a forest:
// 1) every child id is strictly below the id of the node referencing it
// 2) every stored digest matches a recomputation from the children
// 3) every decorator id referenced by a node exists
// 4) roots are in range and listed once
func CheckForestInvariants(f *mast.Forest) error {
	if f == nil {
		return fmt.Errorf("nil forest")
	}
	numDecorators := f.NumDecorators()
	for i, n := range f.Nodes() {
		id, err := safecast.Conv[uint32](i)
		if err != nil {
			return fmt.Errorf("node index overflow: %w", err)
		}
		self := mast.NodeID(id)

		// 1) acyclicity through id order
		for _, c := range n.Children() {
			if c >= self {
				return fmt.Errorf("%s: child %s is not below its parent", self, c)
			}
		}

		// 2) digest
		want, err := recomputeDigest(f, n)
		if err != nil {
			return fmt.Errorf("%s: %w", self, err)
		}
		if n.Digest() != want {
			return fmt.Errorf("%s: stored digest %s, recomputed %s", self, n.Digest().Short(), want.Short())
		}

		// 3) decorator references
		for _, d := range n.Decorators() {
			if d.Index() >= numDecorators {
				return fmt.Errorf("%s: decorator %s out of range (%d decorators)", self, d, numDecorators)
			}
		}
	}

	// 4) roots
	seen := make(map[mast.NodeID]struct{})
	for _, r := range f.Roots() {
		if r.Index() >= f.NumNodes() {
			return fmt.Errorf("root %s out of range (%d nodes)", r, f.NumNodes())
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("root %s listed twice", r)
		}
		seen[r] = struct{}{}
	}
	return nil
}

func recomputeDigest(f *mast.Forest, n mast.Node) (digest.Digest, error) {
	child := func(id mast.NodeID) digest.Digest { return f.NodeDigest(id) }
	switch v := n.(type) {
	case mast.JoinNode:
		return digest.MergeInDomain([2]digest.Digest{child(v.First()), child(v.Second())}, mast.DomainJoin), nil
	case mast.SplitNode:
		return digest.MergeInDomain([2]digest.Digest{child(v.OnTrue()), child(v.OnFalse())}, mast.DomainSplit), nil
	case mast.LoopNode:
		return digest.MergeInDomain([2]digest.Digest{child(v.Body()), digest.Zero}, mast.DomainLoop), nil
	case mast.CallNode:
		domain := mast.DomainCall
		if v.IsSyscall() {
			domain = mast.DomainSyscall
		}
		return digest.MergeInDomain([2]digest.Digest{child(v.Callee()), digest.Zero}, domain), nil
	case mast.DynNode:
		if v.IsDynCall() {
			return mast.DynCallDigest, nil
		}
		return mast.DynDigest, nil
	case mast.ExternalNode:
		return v.Digest(), nil
	case mast.BasicBlockNode:
		b, err := mast.NewBasicBlock(v.Operations(), v.DecoratedOps())
		if err != nil {
			return digest.Zero, err
		}
		return b.Digest(), nil
	default:
		return digest.Zero, fmt.Errorf("unknown node type %T", n)
	}
}

// CheckRootMap verifies that every root of every input was translated to a
// root of merged carrying the same digest.
func CheckRootMap(inputs []*mast.Forest, merged *mast.Forest, roots mast.RootMap) error {
	if roots.Len() != len(inputs) {
		return fmt.Errorf("root map covers %d forests, want %d", roots.Len(), len(inputs))
	}
	for i, f := range inputs {
		for _, r := range f.Roots() {
			out, ok := roots.Lookup(i, r)
			if !ok {
				return fmt.Errorf("forest %d root %s missing from root map", i, r)
			}
			if !merged.IsProcedureRoot(out) {
				return fmt.Errorf("forest %d root %s maps to non-root %s", i, r, out)
			}
			if f.NodeDigest(r) != merged.NodeDigest(out) {
				return fmt.Errorf("forest %d root %s digest changed in merge", i, r)
			}
		}
	}
	return nil
}
