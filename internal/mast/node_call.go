package mast

import "github.com/obellish/vmm-sub002/internal/digest"

// CallNode invokes callee in a new execution context. A syscall runs the callee
// in the kernel context.
type CallNode struct {
	nodeDecorators
	callee    NodeID
	isSyscall bool
	digest    digest.Digest
}

// NewCall builds a call to a node already present in f.
func NewCall(callee NodeID, f *Forest) (CallNode, error) {
	return newCall(callee, false, f)
}

// NewSyscall builds a kernel call to a node already present in f.
func NewSyscall(callee NodeID, f *Forest) (CallNode, error) {
	return newCall(callee, true, f)
}

func newCall(callee NodeID, isSyscall bool, f *Forest) (CallNode, error) {
	c, err := checkChild(f, callee)
	if err != nil {
		return CallNode{}, err
	}
	domain := DomainCall
	if isSyscall {
		domain = DomainSyscall
	}
	return CallNode{
		callee:    callee,
		isSyscall: isSyscall,
		digest:    digest.MergeInDomain([2]digest.Digest{c, digest.Zero}, domain),
	}, nil
}

func (CallNode) Kind() NodeKind          { return KindCall }
func (n CallNode) Digest() digest.Digest { return n.digest }
func (n CallNode) Callee() NodeID        { return n.callee }
func (n CallNode) IsSyscall() bool       { return n.isSyscall }
func (n CallNode) Children() []NodeID    { return []NodeID{n.callee} }
func (CallNode) isNode()                 {}

// Well-known digests of the two dynamic call flavours.
var (
	DynDigest     = digest.MergeInDomain([2]digest.Digest{}, DomainDyn)
	DynCallDigest = digest.MergeInDomain([2]digest.Digest{}, DomainDynCall)
)

// DynNode calls a procedure whose digest is taken from the stack at run time.
type DynNode struct {
	nodeDecorators
	isDynCall bool
}

// NewDyn builds a dynamic exec.
func NewDyn() DynNode { return DynNode{} }

// NewDynCall builds a dynamic call.
func NewDynCall() DynNode { return DynNode{isDynCall: true} }

func (DynNode) Kind() NodeKind     { return KindDyn }
func (n DynNode) IsDynCall() bool  { return n.isDynCall }
func (DynNode) Children() []NodeID { return nil }
func (DynNode) isNode()            {}

func (n DynNode) Digest() digest.Digest {
	if n.isDynCall {
		return DynCallDigest
	}
	return DynDigest
}

// ExternalNode stands in for a procedure defined in another forest. Its digest
// is the digest of the referenced procedure.
type ExternalNode struct {
	nodeDecorators
	digest digest.Digest
}

// NewExternal builds a placeholder for the procedure with the given MAST root.
func NewExternal(root digest.Digest) ExternalNode { return ExternalNode{digest: root} }

func (ExternalNode) Kind() NodeKind          { return KindExternal }
func (n ExternalNode) Digest() digest.Digest { return n.digest }
func (ExternalNode) Children() []NodeID      { return nil }
func (ExternalNode) isNode()                 {}
