package mast

import "github.com/obellish/vmm-sub002/internal/digest"

// IterEventKind distinguishes the events of a MultiForestIterator.
type IterEventKind uint8

const (
	// EventNode: the node should be copied into the merged forest.
	EventNode IterEventKind = iota + 1
	// EventExternalResolved: the external node is replaced by a concrete node
	// from some input forest that has already been yielded.
	EventExternalResolved
)

// IterEvent is one step of a multi-forest traversal.
type IterEvent struct {
	Kind   IterEventKind
	Forest int
	Node   NodeID

	// set for EventExternalResolved
	ReplacementForest int
	ReplacementNode   NodeID
}

type nodeRef struct {
	forest int
	node   NodeID
}

type iterFrame struct {
	ref         nodeRef
	expanded    bool
	replaced    bool
	replacement nodeRef
}

// MultiForestIterator walks several forests at once, yielding every node
// exactly once with children before parents.
//
// An ExternalNode whose digest matches a non-external node of any input forest
// is not yielded as a node; instead the matching node (and its subtree) is
// yielded first, followed by an EventExternalResolved. When several nodes
// match, the first in forest-input order, then id order, wins.
//
// The iterator is single use.
type MultiForestIterator struct {
	forests      []*Forest
	visited      [][]bool
	expanded     [][]bool
	replacements map[digest.Digest]nodeRef
	stack        []iterFrame

	cursorForest int
	cursorNode   int
}

// NewMultiForestIterator prepares a traversal over forests in the given order.
func NewMultiForestIterator(forests []*Forest) *MultiForestIterator {
	it := &MultiForestIterator{
		forests:      forests,
		visited:      make([][]bool, len(forests)),
		expanded:     make([][]bool, len(forests)),
		replacements: make(map[digest.Digest]nodeRef),
	}
	for fi, f := range forests {
		it.visited[fi] = make([]bool, f.NumNodes())
		it.expanded[fi] = make([]bool, f.NumNodes())
		for i, n := range f.nodes {
			if n.Kind() == KindExternal {
				continue
			}
			if _, ok := it.replacements[n.Digest()]; !ok {
				it.replacements[n.Digest()] = nodeRef{forest: fi, node: NodeID(i)}
			}
		}
	}
	return it
}

func (it *MultiForestIterator) isVisited(r nodeRef) bool { return it.visited[r.forest][r.node] }

// inProgress reports whether r is an ancestor of the frame on top of the stack.
func (it *MultiForestIterator) inProgress(r nodeRef) bool {
	return it.expanded[r.forest][r.node] && !it.visited[r.forest][r.node]
}

// advance moves the cursor to the next node not yet yielded.
func (it *MultiForestIterator) advance() (nodeRef, bool) {
	for it.cursorForest < len(it.forests) {
		if it.cursorNode >= it.forests[it.cursorForest].NumNodes() {
			it.cursorForest++
			it.cursorNode = 0
			continue
		}
		ref := nodeRef{forest: it.cursorForest, node: NodeID(it.cursorNode)}
		it.cursorNode++
		if !it.isVisited(ref) {
			return ref, true
		}
	}
	return nodeRef{}, false
}

// Next returns the next event, or false once every node has been yielded.
func (it *MultiForestIterator) Next() (IterEvent, bool) {
	for {
		if len(it.stack) == 0 {
			ref, ok := it.advance()
			if !ok {
				return IterEvent{}, false
			}
			it.stack = append(it.stack, iterFrame{ref: ref})
		}

		top := &it.stack[len(it.stack)-1]
		if it.isVisited(top.ref) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}

		if !top.expanded {
			top.expanded = true
			it.expanded[top.ref.forest][top.ref.node] = true
			it.expand(top)
			continue
		}

		frame := *top
		it.stack = it.stack[:len(it.stack)-1]
		it.visited[frame.ref.forest][frame.ref.node] = true
		if frame.replaced {
			return IterEvent{
				Kind:              EventExternalResolved,
				Forest:            frame.ref.forest,
				Node:              frame.ref.node,
				ReplacementForest: frame.replacement.forest,
				ReplacementNode:   frame.replacement.node,
			}, true
		}
		return IterEvent{Kind: EventNode, Forest: frame.ref.forest, Node: frame.ref.node}, true
	}
}

// expand pushes the dependencies of top. The pushes may reallocate the stack,
// so top must not be used afterwards.
func (it *MultiForestIterator) expand(top *iterFrame) {
	ref := top.ref
	node := it.forests[ref.forest].Node(ref.node)

	if node.Kind() == KindExternal {
		rep, ok := it.replacements[node.Digest()]
		// a replacement that is already being expanded would form a cycle;
		// the external is then kept as is
		if !ok || it.inProgress(rep) {
			return
		}
		top.replaced = true
		top.replacement = rep
		if !it.isVisited(rep) {
			it.stack = append(it.stack, iterFrame{ref: rep})
		}
		return
	}

	children := node.Children()
	for i := len(children) - 1; i >= 0; i-- {
		c := nodeRef{forest: ref.forest, node: children[i]}
		if !it.isVisited(c) {
			it.stack = append(it.stack, iterFrame{ref: c})
		}
	}
}
