// Package mast implements the node-graph program store ("forest") of the VM.
//
// A Forest is an append-only arena of nodes. Nodes reference each other only by
// NodeID, and a node may only reference ids that already exist when it is
// created, so insertion order is always a valid topological order.
//
// Every node carries a digest computed once at construction. Digests identify
// procedures (MAST roots). Fingerprints extend digests with a hash of attached
// decorators and are used by Merge to deduplicate nodes across forests.
//
// # Building
//
//	f := mast.NewForest()
//	a, _ := f.AddBlock([]mast.Operation{mast.Op(mast.OpAdd)}, nil)
//	b, _ := f.AddBlock([]mast.Operation{mast.Push(1)}, nil)
//	j, _ := f.AddJoin(a, b)
//	f.MakeRoot(j)
//
// # Merging
//
//	out, roots, err := mast.Merge(f1, f2)
//	id, _ := roots.Lookup(1, rootOfF2)
package mast
