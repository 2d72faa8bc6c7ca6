package mast

import (
	"errors"
	"fmt"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// ErrorKind enumerates failures of forest construction and merging.
type ErrorKind uint8

const (
	// ErrTooManyNodes: the forest already holds MaxNodes nodes.
	ErrTooManyNodes ErrorKind = iota + 1
	// ErrTooManyDecorators: the forest already holds MaxDecorators decorators.
	ErrTooManyDecorators
	// ErrNodeIDOverflow: a node references a child id that does not exist yet.
	ErrNodeIDOverflow
	// ErrDecoratorIDOverflow: a node references a decorator id that does not exist.
	ErrDecoratorIDOverflow
	// ErrEmptyBasicBlock: a basic block was built without operations.
	ErrEmptyBasicBlock
	// ErrDecoratorOpIndexOutOfBounds: a block decorator points past the last operation.
	ErrDecoratorOpIndexOutOfBounds
	// ErrChildFingerprintMissing: fingerprints were requested out of topological order.
	ErrChildFingerprintMissing
	// ErrAdviceMapKeyCollisionOnMerge: two forests disagree on an advice map entry.
	ErrAdviceMapKeyCollisionOnMerge
	// ErrInvalidOperation: a block operation has an unknown opcode or an oversized immediate.
	ErrInvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTooManyNodes:
		return "TooManyNodes"
	case ErrTooManyDecorators:
		return "TooManyDecorators"
	case ErrNodeIDOverflow:
		return "NodeIdOverflow"
	case ErrDecoratorIDOverflow:
		return "DecoratorIdOverflow"
	case ErrEmptyBasicBlock:
		return "EmptyBasicBlock"
	case ErrDecoratorOpIndexOutOfBounds:
		return "DecoratorOpIndexOutOfBounds"
	case ErrChildFingerprintMissing:
		return "ChildFingerprintMissing"
	case ErrAdviceMapKeyCollisionOnMerge:
		return "AdviceMapKeyCollisionOnMerge"
	case ErrInvalidOperation:
		return "InvalidOperation"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// ForestError describes a failed forest operation. Only the fields relevant to
// Kind are set.
type ForestError struct {
	Kind      ErrorKind
	Node      NodeID        // ErrNodeIDOverflow, ErrChildFingerprintMissing
	Decorator DecoratorID   // ErrDecoratorIDOverflow
	OpIndex   uint64        // ErrDecoratorOpIndexOutOfBounds, ErrInvalidOperation
	Limit     uint64        // forest size or operation count the index was checked against
	Key       digest.Digest // ErrAdviceMapKeyCollisionOnMerge
	Err       error         // ErrInvalidOperation
}

func (e *ForestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrTooManyNodes:
		return fmt.Sprintf("forest cannot hold more than %d nodes", MaxNodes)
	case ErrTooManyDecorators:
		return fmt.Sprintf("forest cannot hold more than %d decorators", uint64(MaxDecorators))
	case ErrNodeIDOverflow:
		return fmt.Sprintf("node id %d is out of bounds for a forest of %d nodes", uint32(e.Node), e.Limit)
	case ErrDecoratorIDOverflow:
		return fmt.Sprintf("decorator id %d is out of bounds for a forest of %d decorators", uint32(e.Decorator), e.Limit)
	case ErrEmptyBasicBlock:
		return "basic block must contain at least one operation"
	case ErrDecoratorOpIndexOutOfBounds:
		return fmt.Sprintf("decorator operation index %d is out of bounds for a block of %d operations", e.OpIndex, e.Limit)
	case ErrChildFingerprintMissing:
		return fmt.Sprintf("fingerprint of child %s has not been computed", e.Node)
	case ErrAdviceMapKeyCollisionOnMerge:
		return fmt.Sprintf("advice map key %s has conflicting values across merged forests", e.Key)
	case ErrInvalidOperation:
		if e.Err != nil {
			return fmt.Sprintf("invalid operation at index %d: %v", e.OpIndex, e.Err)
		}
		return fmt.Sprintf("invalid operation at index %d", e.OpIndex)
	default:
		return fmt.Sprintf("forest error kind=%d", e.Kind)
	}
}

// Is matches another *ForestError with the same Kind, so errors.Is works
// against the values returned by KindError.
func (e *ForestError) Is(target error) bool {
	var other *ForestError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

func (e *ForestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindError returns a bare error of the given kind for use with errors.Is.
func KindError(kind ErrorKind) error {
	return &ForestError{Kind: kind}
}

// IsKind reports whether err wraps a *ForestError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *ForestError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}
