package mast

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// DecoratorKind identifies a decorator variant.
type DecoratorKind uint8

const (
	DecoratorAsmOp DecoratorKind = iota + 1
	DecoratorDebug
	DecoratorTrace
)

func (k DecoratorKind) String() string {
	switch k {
	case DecoratorAsmOp:
		return "asmop"
	case DecoratorDebug:
		return "debug"
	case DecoratorTrace:
		return "trace"
	default:
		return fmt.Sprintf("decorator(%d)", uint8(k))
	}
}

// Decorator is out-of-band metadata attached to nodes or block operations. It
// never changes a node digest. The set of implementations is closed: AsmOp,
// Debug and Trace.
type Decorator interface {
	Kind() DecoratorKind
	String() string
	isDecorator()
}

// Location is a span inside a source file.
type Location struct {
	Path  string
	Start uint32
	End   uint32
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d..%d", l.Path, l.Start, l.End)
}

// AsmOp records which assembly instruction a run of VM operations came from.
type AsmOp struct {
	Location    *Location
	ContextName string
	Op          string
	NumCycles   uint8
	ShouldBreak bool
}

// NewAsmOp builds an AsmOp with NFC-normalised strings, so that the same path or
// mnemonic spelled with different Unicode compositions hashes and interns equally.
func NewAsmOp(loc *Location, contextName, op string, numCycles uint8, shouldBreak bool) AsmOp {
	var l *Location
	if loc != nil {
		cp := *loc
		cp.Path = norm.NFC.String(cp.Path)
		l = &cp
	}
	return AsmOp{
		Location:    l,
		ContextName: norm.NFC.String(contextName),
		Op:          norm.NFC.String(op),
		NumCycles:   numCycles,
		ShouldBreak: shouldBreak,
	}
}

func (AsmOp) Kind() DecoratorKind { return DecoratorAsmOp }
func (AsmOp) isDecorator()        {}

func (a AsmOp) String() string {
	s := fmt.Sprintf("asmop(%s, %s, %d cycles", a.ContextName, a.Op, a.NumCycles)
	if a.Location != nil {
		s += ", " + a.Location.String()
	}
	if a.ShouldBreak {
		s += ", break"
	}
	return s + ")"
}

// DebugKind selects what a Debug decorator prints.
type DebugKind uint8

const (
	DebugStackAll DebugKind = iota + 1
	DebugStackTop
	DebugMemAll
	DebugMemInterval
	DebugLocalInterval
)

func (k DebugKind) String() string {
	switch k {
	case DebugStackAll:
		return "stack"
	case DebugStackTop:
		return "stack.top"
	case DebugMemAll:
		return "mem"
	case DebugMemInterval:
		return "mem.interval"
	case DebugLocalInterval:
		return "local.interval"
	default:
		return fmt.Sprintf("debug(%d)", uint8(k))
	}
}

// Debug asks the VM to print part of its state. Only the fields relevant to
// Mode are used: Top for DebugStackTop, Start/End for the interval kinds and
// NumLocals for DebugLocalInterval.
type Debug struct {
	Mode      DebugKind
	Top       uint8
	Start     uint32
	End       uint32
	NumLocals uint16
}

func DebugStack() Debug               { return Debug{Mode: DebugStackAll} }
func DebugStackTopN(n uint8) Debug    { return Debug{Mode: DebugStackTop, Top: n} }
func DebugMem() Debug                 { return Debug{Mode: DebugMemAll} }
func DebugMemRange(a, b uint32) Debug { return Debug{Mode: DebugMemInterval, Start: a, End: b} }
func DebugLocals(start, end uint16, numLocals uint16) Debug {
	return Debug{Mode: DebugLocalInterval, Start: uint32(start), End: uint32(end), NumLocals: numLocals}
}

func (Debug) Kind() DecoratorKind { return DecoratorDebug }
func (Debug) isDecorator()        {}

func (d Debug) String() string {
	switch d.Mode {
	case DebugStackTop:
		return fmt.Sprintf("debug(%s.%d)", d.Mode, d.Top)
	case DebugMemInterval:
		return fmt.Sprintf("debug(%s.%d.%d)", d.Mode, d.Start, d.End)
	case DebugLocalInterval:
		return fmt.Sprintf("debug(%s.%d.%d/%d)", d.Mode, d.Start, d.End, d.NumLocals)
	default:
		return fmt.Sprintf("debug(%s)", d.Mode)
	}
}

// Trace emits a trace event with the given id when executed.
type Trace struct {
	ID uint32
}

func (Trace) Kind() DecoratorKind { return DecoratorTrace }
func (Trace) isDecorator()        {}
func (t Trace) String() string    { return fmt.Sprintf("trace(%d)", t.ID) }

// decorator content hashing

var decoratorEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("mast: failed to create CBOR enc mode: %v", err))
	}
	decoratorEncMode = em
}

type locationImage struct {
	Path  string `cbor:"1,keyasint"`
	Start uint32 `cbor:"2,keyasint"`
	End   uint32 `cbor:"3,keyasint"`
}

type decoratorImage struct {
	Kind        DecoratorKind  `cbor:"1,keyasint"`
	Location    *locationImage `cbor:"2,keyasint,omitempty"`
	ContextName string         `cbor:"3,keyasint,omitempty"`
	Op          string         `cbor:"4,keyasint,omitempty"`
	NumCycles   uint8          `cbor:"5,keyasint,omitempty"`
	ShouldBreak bool           `cbor:"6,keyasint,omitempty"`
	DebugKind   DebugKind      `cbor:"7,keyasint,omitempty"`
	Top         uint8          `cbor:"8,keyasint,omitempty"`
	Start       uint32         `cbor:"9,keyasint,omitempty"`
	End         uint32         `cbor:"10,keyasint,omitempty"`
	NumLocals   uint16         `cbor:"11,keyasint,omitempty"`
	TraceID     uint32         `cbor:"12,keyasint,omitempty"`
}

func imageOf(d Decorator) decoratorImage {
	switch v := d.(type) {
	case AsmOp:
		img := decoratorImage{
			Kind:        DecoratorAsmOp,
			ContextName: v.ContextName,
			Op:          v.Op,
			NumCycles:   v.NumCycles,
			ShouldBreak: v.ShouldBreak,
		}
		if v.Location != nil {
			img.Location = &locationImage{Path: v.Location.Path, Start: v.Location.Start, End: v.Location.End}
		}
		return img
	case Debug:
		return decoratorImage{
			Kind:      DecoratorDebug,
			DebugKind: v.Mode,
			Top:       v.Top,
			Start:     v.Start,
			End:       v.End,
			NumLocals: v.NumLocals,
		}
	case Trace:
		return decoratorImage{Kind: DecoratorTrace, TraceID: v.ID}
	default:
		panic(fmt.Sprintf("mast: unknown decorator type %T", d))
	}
}

// DecoratorContentHash hashes the canonical CBOR image of d. Equal decorator
// values always have equal content hashes.
func DecoratorContentHash(d Decorator) digest.Digest {
	data, err := decoratorEncMode.Marshal(imageOf(d))
	if err != nil {
		// fixed-shape structs of integers and strings always encode
		panic(fmt.Sprintf("mast: encode decorator: %v", err))
	}
	return digest.Hash(data)
}
