package program

import (
	"slices"
	"strings"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// MaxKernelProcedures bounds the kernel size; the count is encoded in one byte.
const MaxKernelProcedures = 255

// Kernel is the set of procedures reachable through syscalls. The zero value is
// the empty kernel.
type Kernel struct {
	procs []digest.Digest // sorted, unique
}

// NewKernel builds a kernel from procedure digests. Duplicates are dropped
// before the size limit is checked.
func NewKernel(procs []digest.Digest) (Kernel, error) {
	sorted := slices.Clone(procs)
	slices.SortFunc(sorted, func(a, b digest.Digest) int { return strings.Compare(string(a[:]), string(b[:])) })
	sorted = slices.Compact(sorted)
	if len(sorted) > MaxKernelProcedures {
		return Kernel{}, &ProgramError{Kind: ErrTooManyKernelProcedures, Count: len(sorted)}
	}
	if len(sorted) == 0 {
		return Kernel{}, nil
	}
	return Kernel{procs: sorted}, nil
}

// Procedures returns the kernel procedure digests in ascending order.
func (k Kernel) Procedures() []digest.Digest { return slices.Clone(k.procs) }

func (k Kernel) Len() int      { return len(k.procs) }
func (k Kernel) IsEmpty() bool { return len(k.procs) == 0 }

// Contains reports whether proc is a kernel procedure.
func (k Kernel) Contains(proc digest.Digest) bool {
	_, ok := slices.BinarySearchFunc(k.procs, proc, func(a, b digest.Digest) int {
		return strings.Compare(string(a[:]), string(b[:]))
	})
	return ok
}

// Hash commits to the procedure set. The empty kernel hashes to Zero.
func (k Kernel) Hash() digest.Digest {
	if len(k.procs) == 0 {
		return digest.Zero
	}
	return digest.Combine(k.procs[0], k.procs[1:]...)
}

// Equal reports whether both kernels hold the same procedures.
func (k Kernel) Equal(other Kernel) bool { return slices.Equal(k.procs, other.procs) }
