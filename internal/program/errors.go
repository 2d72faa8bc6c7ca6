package program

import (
	"errors"
	"fmt"

	"github.com/obellish/vmm-sub002/internal/mast"
)

// ErrorKind enumerates program construction failures.
type ErrorKind uint8

const (
	ErrEntrypointOutOfRange ErrorKind = iota + 1
	ErrEntrypointNotRoot
	ErrTooManyKernelProcedures
)

func (k ErrorKind) String() string {
	switch k {
	case ErrEntrypointOutOfRange:
		return "EntrypointOutOfRange"
	case ErrEntrypointNotRoot:
		return "EntrypointNotRoot"
	case ErrTooManyKernelProcedures:
		return "TooManyKernelProcedures"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// ProgramError describes why a program or kernel could not be built.
type ProgramError struct {
	Kind  ErrorKind
	Node  mast.NodeID
	Count int // nodes in the forest, or kernel procedures supplied
}

func (e *ProgramError) Error() string {
	switch e.Kind {
	case ErrEntrypointOutOfRange:
		return fmt.Sprintf("entrypoint %s is out of bounds for a forest of %d nodes", e.Node, e.Count)
	case ErrEntrypointNotRoot:
		return fmt.Sprintf("entrypoint %s is not a procedure root", e.Node)
	case ErrTooManyKernelProcedures:
		return fmt.Sprintf("kernel has %d procedures, at most %d allowed", e.Count, MaxKernelProcedures)
	default:
		return fmt.Sprintf("program error kind=%d", e.Kind)
	}
}

func (e *ProgramError) Is(target error) bool {
	other, ok := target.(*ProgramError)
	return ok && other.Kind == e.Kind
}

// IsKind reports whether err wraps a *ProgramError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProgramError
	return errors.As(err, &pe) && pe.Kind == kind
}
