// Package program pins one procedure of a MAST forest as the executable
// entrypoint, together with the kernel it may syscall into.
package program

import (
	"fmt"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
)

// Program is an executable view of a forest. The forest is shared and must not
// be modified after the program is built.
type Program struct {
	forest     *mast.Forest
	entrypoint mast.NodeID
	kernel     Kernel
}

// NewProgram builds a program with an empty kernel.
func NewProgram(f *mast.Forest, entrypoint mast.NodeID) (*Program, error) {
	return NewProgramWithKernel(f, entrypoint, Kernel{})
}

// NewProgramWithKernel builds a program. The entrypoint must be a procedure
// root of f.
func NewProgramWithKernel(f *mast.Forest, entrypoint mast.NodeID, kernel Kernel) (*Program, error) {
	if entrypoint.Index() >= f.NumNodes() {
		return nil, &ProgramError{Kind: ErrEntrypointOutOfRange, Node: entrypoint, Count: f.NumNodes()}
	}
	if !f.IsProcedureRoot(entrypoint) {
		return nil, &ProgramError{Kind: ErrEntrypointNotRoot, Node: entrypoint}
	}
	return &Program{forest: f, entrypoint: entrypoint, kernel: kernel}, nil
}

// FromDigest builds a program whose entrypoint is the procedure root of f
// with the given MAST root.
func FromDigest(f *mast.Forest, entry digest.Digest, kernel Kernel) (*Program, error) {
	id, ok := f.FindProcedureRoot(entry)
	if !ok {
		return nil, fmt.Errorf("no procedure with MAST root %s", entry.Short())
	}
	return NewProgramWithKernel(f, id, kernel)
}

func (p *Program) Forest() *mast.Forest      { return p.forest }
func (p *Program) Entrypoint() mast.NodeID   { return p.entrypoint }
func (p *Program) Kernel() Kernel            { return p.kernel }
func (p *Program) EntrypointNode() mast.Node { return p.forest.Node(p.entrypoint) }

// Hash is the MAST root of the entrypoint, the identity of the program.
func (p *Program) Hash() digest.Digest { return p.forest.NodeDigest(p.entrypoint) }

// Info is what a verifier needs to know about a program.
type Info struct {
	Hash   digest.Digest
	Kernel Kernel
}

func (i Info) String() string {
	return fmt.Sprintf("program %s (kernel %d procs, %s)", i.Hash.Short(), i.Kernel.Len(), i.Kernel.Hash().Short())
}

// Info returns the program hash and kernel.
func (p *Program) Info() Info { return Info{Hash: p.Hash(), Kernel: p.kernel} }
