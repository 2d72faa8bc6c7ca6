package mast

import (
	"context"
	"fmt"
	"strconv"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/trace"
)

// RootMap translates the procedure roots of each merged input forest into ids
// of the merged forest. It is indexed by the position of the input forest.
type RootMap struct {
	maps []map[NodeID]NodeID
}

// Lookup returns the merged id of root from the forest at position forestIdx.
func (r RootMap) Lookup(forestIdx int, root NodeID) (NodeID, bool) {
	if forestIdx < 0 || forestIdx >= len(r.maps) {
		return 0, false
	}
	id, ok := r.maps[forestIdx][root]
	return id, ok
}

// Forest returns a copy of the root translation of one input forest.
func (r RootMap) Forest(forestIdx int) map[NodeID]NodeID {
	if forestIdx < 0 || forestIdx >= len(r.maps) {
		return nil
	}
	out := make(map[NodeID]NodeID, len(r.maps[forestIdx]))
	for k, v := range r.maps[forestIdx] {
		out[k] = v
	}
	return out
}

// Len returns the number of input forests.
func (r RootMap) Len() int { return len(r.maps) }

// MergeStats counts what a merge did.
type MergeStats struct {
	InputNodes        int
	OutputNodes       int
	DedupedNodes      int
	ResolvedExternals int
	InputDecorators   int
	OutputDecorators  int
}

// Merger holds the deduplication state of a single merge. Build one with
// NewMerger per merge; it must not be reused.
type Merger struct {
	forests []*Forest
	out     *Forest
	fpr     *fingerprinter
	tracer  trace.Tracer
	span    uint64

	fingerprintToID map[Fingerprint]NodeID
	idToFingerprint map[NodeID]Fingerprint
	decoratorByHash map[digest.Digest]DecoratorID

	// per input forest, local id -> merged id
	nodeMaps      []map[NodeID]NodeID
	decoratorMaps []map[DecoratorID]DecoratorID

	stats MergeStats
	used  bool
}

// NewMerger prepares a merge of forests. Output ids depend on input order.
func NewMerger(forests []*Forest) *Merger {
	out := NewForest()
	m := &Merger{
		forests:         forests,
		out:             out,
		fpr:             newFingerprinter(out),
		tracer:          trace.Nop,
		fingerprintToID: make(map[Fingerprint]NodeID),
		idToFingerprint: make(map[NodeID]Fingerprint),
		decoratorByHash: make(map[digest.Digest]DecoratorID),
		nodeMaps:        make([]map[NodeID]NodeID, len(forests)),
		decoratorMaps:   make([]map[DecoratorID]DecoratorID, len(forests)),
	}
	for i, f := range forests {
		m.nodeMaps[i] = make(map[NodeID]NodeID, f.NumNodes())
		m.decoratorMaps[i] = make(map[DecoratorID]DecoratorID, f.NumDecorators())
	}
	return m
}

// Merge combines forests into a new forest, deduplicating identical subtrees
// and resolving external nodes against concrete nodes of other inputs. Inputs
// are not modified. On error no forest is returned.
func Merge(forests ...*Forest) (*Forest, RootMap, error) {
	return MergeContext(context.Background(), forests...)
}

// MergeContext is Merge with the tracer taken from ctx.
func MergeContext(ctx context.Context, forests ...*Forest) (*Forest, RootMap, error) {
	m := NewMerger(forests)
	out, roots, err := m.Run(ctx)
	return out, roots, err
}

// Stats returns counters collected by Run.
func (m *Merger) Stats() MergeStats { return m.stats }

// Run performs the merge. It can be called once.
func (m *Merger) Run(ctx context.Context) (*Forest, RootMap, error) {
	if m.used {
		return nil, RootMap{}, fmt.Errorf("mast: merger already used")
	}
	m.used = true
	m.tracer = trace.FromContext(ctx)
	span := trace.Begin(m.tracer, trace.ScopePass, "merge", trace.CurrentSpan(ctx).SpanID)
	span.WithExtra("inputs", strconv.Itoa(len(m.forests)))
	m.span = span.ID()

	if err := m.phase("merge.advice", m.mergeAdviceMaps); err != nil {
		span.End("failed")
		return nil, RootMap{}, err
	}
	if err := m.phase("merge.decorators", m.mergeDecorators); err != nil {
		span.End("failed")
		return nil, RootMap{}, err
	}
	if err := m.phase("merge.nodes", m.mergeNodes); err != nil {
		span.End("failed")
		return nil, RootMap{}, err
	}
	var roots RootMap
	if err := m.phase("merge.roots", func() error {
		roots = m.mergeRoots()
		return nil
	}); err != nil {
		span.End("failed")
		return nil, RootMap{}, err
	}

	m.stats.OutputNodes = m.out.NumNodes()
	m.stats.OutputDecorators = m.out.NumDecorators()
	span.WithExtra("nodes", strconv.Itoa(m.stats.OutputNodes)).
		WithExtra("deduped", strconv.Itoa(m.stats.DedupedNodes))
	span.End("")
	return m.out, roots, nil
}

func (m *Merger) phase(name string, fn func() error) error {
	span := trace.Begin(m.tracer, trace.ScopePass, name, m.span)
	err := fn()
	if err != nil {
		span.End(err.Error())
		return err
	}
	span.End("")
	return nil
}

func (m *Merger) mergeAdviceMaps() error {
	for _, f := range m.forests {
		if err := m.out.advice.MergeFrom(&f.advice); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) mergeDecorators() error {
	for fi, f := range m.forests {
		remap := m.decoratorMaps[fi]
		for i, d := range f.decorators {
			m.stats.InputDecorators++
			h := DecoratorContentHash(d)
			if existing, ok := m.decoratorByHash[h]; ok {
				remap[DecoratorID(i)] = existing
				continue
			}
			id, err := m.out.AddDecorator(d)
			if err != nil {
				return err
			}
			m.decoratorByHash[h] = id
			m.fpr.decHashes[id] = h
			remap[DecoratorID(i)] = id
		}
	}
	return nil
}

func (m *Merger) mergeNodes() error {
	it := NewMultiForestIterator(m.forests)
	debug := m.tracer.Level().ShouldEmit(trace.ScopeNode)
	for {
		ev, ok := it.Next()
		if !ok {
			return nil
		}
		m.stats.InputNodes++
		switch ev.Kind {
		case EventExternalResolved:
			target, ok := m.nodeMaps[ev.ReplacementForest][ev.ReplacementNode]
			if !ok {
				return &ForestError{Kind: ErrNodeIDOverflow, Node: ev.ReplacementNode, Limit: uint64(m.out.NumNodes())}
			}
			m.nodeMaps[ev.Forest][ev.Node] = target
			m.stats.ResolvedExternals++
			if debug {
				trace.Point(m.tracer, trace.ScopeNode, "merge.external",
					fmt.Sprintf("forest %d %s -> forest %d %s", ev.Forest, ev.Node, ev.ReplacementForest, ev.ReplacementNode))
			}
		case EventNode:
			if err := m.mergeNode(ev.Forest, ev.Node, debug); err != nil {
				return err
			}
		}
	}
}

func (m *Merger) mergeNode(fi int, id NodeID, debug bool) error {
	rebuilt, err := m.remapNode(fi, m.forests[fi].Node(id))
	if err != nil {
		return err
	}
	fp, err := m.fpr.fingerprint(rebuilt, m.idToFingerprint)
	if err != nil {
		return err
	}
	if existing, ok := m.fingerprintToID[fp]; ok {
		m.nodeMaps[fi][id] = existing
		m.stats.DedupedNodes++
		if debug {
			trace.Point(m.tracer, trace.ScopeNode, "merge.dedup",
				fmt.Sprintf("forest %d %s -> %s", fi, id, existing))
		}
		return nil
	}
	outID, err := m.out.AddNode(rebuilt)
	if err != nil {
		return err
	}
	m.fingerprintToID[fp] = outID
	m.idToFingerprint[outID] = fp
	m.nodeMaps[fi][id] = outID
	return nil
}

// remapNode rebuilds node from forest fi against the merged forest.
func (m *Merger) remapNode(fi int, node Node) (Node, error) {
	nodes := m.nodeMaps[fi]
	child := func(id NodeID) (NodeID, error) {
		out, ok := nodes[id]
		if !ok {
			return 0, &ForestError{Kind: ErrNodeIDOverflow, Node: id, Limit: uint64(m.out.NumNodes())}
		}
		return out, nil
	}
	decs := m.decoratorMaps[fi]
	decorators := func(ids []DecoratorID) ([]DecoratorID, error) {
		if len(ids) == 0 {
			return nil, nil
		}
		out := make([]DecoratorID, len(ids))
		for i, id := range ids {
			mapped, ok := decs[id]
			if !ok {
				return nil, &ForestError{Kind: ErrDecoratorIDOverflow, Decorator: id, Limit: uint64(m.out.NumDecorators())}
			}
			out[i] = mapped
		}
		return out, nil
	}

	var rebuilt Node
	switch n := node.(type) {
	case JoinNode:
		a, err := child(n.first)
		if err != nil {
			return nil, err
		}
		b, err := child(n.second)
		if err != nil {
			return nil, err
		}
		if rebuilt, err = NewJoin(a, b, m.out); err != nil {
			return nil, err
		}
	case SplitNode:
		a, err := child(n.onTrue)
		if err != nil {
			return nil, err
		}
		b, err := child(n.onFalse)
		if err != nil {
			return nil, err
		}
		if rebuilt, err = NewSplit(a, b, m.out); err != nil {
			return nil, err
		}
	case LoopNode:
		body, err := child(n.body)
		if err != nil {
			return nil, err
		}
		if rebuilt, err = NewLoop(body, m.out); err != nil {
			return nil, err
		}
	case CallNode:
		callee, err := child(n.callee)
		if err != nil {
			return nil, err
		}
		if rebuilt, err = newCall(callee, n.isSyscall, m.out); err != nil {
			return nil, err
		}
	case DynNode:
		rebuilt = DynNode{isDynCall: n.isDynCall}
	case ExternalNode:
		rebuilt = NewExternal(n.digest)
	case BasicBlockNode:
		ops := make([]DecoratedOp, len(n.decorators))
		for i, d := range n.decorators {
			mapped, ok := decs[d.Decorator]
			if !ok {
				return nil, &ForestError{Kind: ErrDecoratorIDOverflow, Decorator: d.Decorator, Limit: uint64(m.out.NumDecorators())}
			}
			ops[i] = DecoratedOp{OpIndex: d.OpIndex, Decorator: mapped}
		}
		return NewBasicBlock(n.ops, ops)
	default:
		panic(fmt.Sprintf("mast: unknown node type %T", node))
	}

	before, err := decorators(node.BeforeEnter())
	if err != nil {
		return nil, err
	}
	after, err := decorators(node.AfterExit())
	if err != nil {
		return nil, err
	}
	return withDecorators(rebuilt, before, after), nil
}

func (m *Merger) mergeRoots() RootMap {
	roots := RootMap{maps: make([]map[NodeID]NodeID, len(m.forests))}
	for fi, f := range m.forests {
		roots.maps[fi] = make(map[NodeID]NodeID, len(f.roots))
		for _, r := range f.roots {
			out := m.nodeMaps[fi][r]
			m.out.MakeRoot(out)
			roots.maps[fi][r] = out
		}
	}
	return roots
}
