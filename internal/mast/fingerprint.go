package mast

import "github.com/obellish/vmm-sub002/internal/digest"

// Fingerprint is the merge-time identity of a node: its MAST root plus, when the
// node or any descendant carries decorators, a hash over that metadata. Two
// nodes with equal fingerprints are interchangeable; equal MAST roots with
// different decorator roots are not.
type Fingerprint struct {
	MastRoot         digest.Digest
	DecoratorRoot    digest.Digest
	HasDecoratorRoot bool
}

func (fp Fingerprint) String() string {
	if !fp.HasDecoratorRoot {
		return fp.MastRoot.Short()
	}
	return fp.MastRoot.Short() + "/" + fp.DecoratorRoot.Short()
}

// tags separating the entries of a decorator root
const (
	fpTagDecorator byte = 'd'
	fpTagImmediate byte = 'i'
	fpTagChild     byte = 'c'
)

// fingerprinter caches decorator content hashes of one forest.
type fingerprinter struct {
	forest    *Forest
	decHashes map[DecoratorID]digest.Digest
}

func newFingerprinter(f *Forest) *fingerprinter {
	return &fingerprinter{forest: f, decHashes: make(map[DecoratorID]digest.Digest)}
}

func (fpr *fingerprinter) decoratorHash(id DecoratorID) digest.Digest {
	if h, ok := fpr.decHashes[id]; ok {
		return h
	}
	h := DecoratorContentHash(fpr.forest.Decorator(id))
	fpr.decHashes[id] = h
	return h
}

// fingerprint computes the fingerprint of node whose children and decorators
// are ids of fpr.forest. known must hold the fingerprints of all children.
func (fpr *fingerprinter) fingerprint(node Node, known map[NodeID]Fingerprint) (Fingerprint, error) {
	fp := Fingerprint{MastRoot: node.Digest()}
	h := digest.NewHasher(0)
	wrote := false

	switch n := node.(type) {
	case BasicBlockNode:
		for _, d := range n.decorators {
			_, _ = h.Write([]byte{fpTagDecorator})
			h.WriteUint64(uint64(d.OpIndex))
			h.WriteDigest(fpr.decoratorHash(d.Decorator))
			wrote = true
		}
		for i, op := range n.ops {
			if op.Op.ImmediateClass() != ImmTamper {
				continue
			}
			_, _ = h.Write([]byte{fpTagImmediate, byte(op.Op)})
			h.WriteUint64(uint64(i))
			h.WriteUint64(op.Imm)
			wrote = true
		}
	default:
		before, after := node.BeforeEnter(), node.AfterExit()
		if len(before)+len(after) > 0 {
			h.WriteUint64(uint64(len(before)))
			h.WriteUint64(uint64(len(after)))
			for _, id := range before {
				_, _ = h.Write([]byte{fpTagDecorator})
				h.WriteDigest(fpr.decoratorHash(id))
			}
			for _, id := range after {
				_, _ = h.Write([]byte{fpTagDecorator})
				h.WriteDigest(fpr.decoratorHash(id))
			}
			wrote = true
		}
		for pos, child := range node.Children() {
			cfp, ok := known[child]
			if !ok {
				return Fingerprint{}, &ForestError{Kind: ErrChildFingerprintMissing, Node: child}
			}
			if !cfp.HasDecoratorRoot {
				continue
			}
			_, _ = h.Write([]byte{fpTagChild})
			h.WriteUint64(uint64(pos))
			h.WriteDigest(cfp.DecoratorRoot)
			wrote = true
		}
	}

	if wrote {
		fp.DecoratorRoot = h.Sum()
		fp.HasDecoratorRoot = true
	}
	return fp, nil
}

// ComputeFingerprint returns the fingerprint of node, whose child and decorator
// ids refer to f. known must contain the fingerprint of every child; a missing
// child yields ErrChildFingerprintMissing.
func ComputeFingerprint(f *Forest, node Node, known map[NodeID]Fingerprint) (Fingerprint, error) {
	return newFingerprinter(f).fingerprint(node, known)
}

// FingerprintForest computes the fingerprint of every node of f, indexed by id.
func FingerprintForest(f *Forest) ([]Fingerprint, error) {
	fpr := newFingerprinter(f)
	known := make(map[NodeID]Fingerprint, f.NumNodes())
	out := make([]Fingerprint, f.NumNodes())
	for i, n := range f.nodes {
		fp, err := fpr.fingerprint(n, known)
		if err != nil {
			return nil, err
		}
		known[NodeID(i)] = fp
		out[i] = fp
	}
	return out, nil
}
