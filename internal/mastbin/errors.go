package mastbin

import (
	"errors"
	"fmt"

	"github.com/obellish/vmm-sub002/internal/mast"
)

// ErrorKind enumerates decoding failures.
type ErrorKind uint8

const (
	ErrBadMagic ErrorKind = iota + 1
	ErrUnsupportedVersion
	ErrUnexpectedEOF
	ErrInvalidValue
	ErrNodeIDOverflow
	ErrDigestMismatch
	ErrWrongArtifactKind
	ErrTrailingBytes
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadMagic:
		return "BadMagic"
	case ErrUnsupportedVersion:
		return "UnsupportedVersion"
	case ErrUnexpectedEOF:
		return "UnexpectedEOF"
	case ErrInvalidValue:
		return "InvalidValue"
	case ErrNodeIDOverflow:
		return "NodeIdOverflow"
	case ErrDigestMismatch:
		return "DigestMismatch"
	case ErrWrongArtifactKind:
		return "WrongArtifactKind"
	case ErrTrailingBytes:
		return "TrailingBytes"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// DecodeError describes a malformed stream. Offset is the byte position at
// which the problem was found.
type DecodeError struct {
	Kind    ErrorKind
	Section string
	Offset  int
	Node    mast.NodeID // ErrNodeIDOverflow, ErrDigestMismatch
	Limit   int         // ErrNodeIDOverflow: nodes decoded so far
	Msg     string      // ErrInvalidValue
	Err     error
}

func (e *DecodeError) Error() string {
	where := fmt.Sprintf("%s at offset %d", e.Section, e.Offset)
	switch e.Kind {
	case ErrBadMagic:
		return "not a MAST artifact: bad magic"
	case ErrUnsupportedVersion:
		return fmt.Sprintf("unsupported format version: %s", e.Msg)
	case ErrUnexpectedEOF:
		return fmt.Sprintf("unexpected end of stream in %s", where)
	case ErrInvalidValue:
		if e.Err != nil {
			return fmt.Sprintf("invalid value in %s: %s: %v", where, e.Msg, e.Err)
		}
		return fmt.Sprintf("invalid value in %s: %s", where, e.Msg)
	case ErrNodeIDOverflow:
		return fmt.Sprintf("node %s references a node outside the %d decoded so far", e.Node, e.Limit)
	case ErrDigestMismatch:
		return fmt.Sprintf("stored digest of node %s does not match its content", e.Node)
	case ErrWrongArtifactKind:
		return fmt.Sprintf("wrong artifact kind: %s", e.Msg)
	case ErrTrailingBytes:
		return fmt.Sprintf("trailing bytes after %s", where)
	default:
		return fmt.Sprintf("decode error kind=%d in %s", e.Kind, where)
	}
}

func (e *DecodeError) Is(target error) bool {
	other, ok := target.(*DecodeError)
	return ok && other.Kind == e.Kind
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsKind reports whether err wraps a *DecodeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}
