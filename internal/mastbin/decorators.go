package mastbin

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/obellish/vmm-sub002/internal/mast"
)

// decoratorTable accumulates the decorator info table and data blob.
type decoratorTable struct {
	info    writer
	data    writer
	strings *StringTable
}

func (t *decoratorTable) add(d mast.Decorator) error {
	offset, err := safecast.Conv[uint32](t.data.len())
	if err != nil {
		return fmt.Errorf("decorator data too large: %w", err)
	}
	var tag uint8
	switch v := d.(type) {
	case mast.AsmOp:
		tag = decAsmOp
		if err := t.writeAsmOp(v); err != nil {
			return err
		}
	case mast.Debug:
		switch v.Mode {
		case mast.DebugStackAll:
			tag = decDebugStackAll
		case mast.DebugStackTop:
			tag = decDebugStackTop
			t.data.u8(v.Top)
		case mast.DebugMemAll:
			tag = decDebugMemAll
		case mast.DebugMemInterval:
			tag = decDebugMemInterval
			t.data.u32(v.Start)
			t.data.u32(v.End)
		case mast.DebugLocalInterval:
			tag = decDebugLocalInterval
			t.data.u32(v.Start)
			t.data.u32(v.End)
			t.data.u16(v.NumLocals)
		default:
			return fmt.Errorf("unknown debug mode %s", v.Mode)
		}
	case mast.Trace:
		tag = decTrace
		t.data.u32(v.ID)
	default:
		return fmt.Errorf("unknown decorator type %T", d)
	}
	t.info.u8(tag)
	t.info.u32(offset)
	return nil
}

func (t *decoratorTable) writeAsmOp(a mast.AsmOp) error {
	var flags uint8
	if a.Location != nil {
		flags |= asmHasLocation
	}
	if a.ShouldBreak {
		flags |= asmShouldBreak
	}
	ctx, err := t.strings.Intern(a.ContextName)
	if err != nil {
		return err
	}
	op, err := t.strings.Intern(a.Op)
	if err != nil {
		return err
	}
	t.data.u8(flags)
	t.data.u8(a.NumCycles)
	t.data.u32(uint32(ctx))
	t.data.u32(uint32(op))
	if a.Location != nil {
		path, err := t.strings.Intern(a.Location.Path)
		if err != nil {
			return err
		}
		t.data.u32(uint32(path))
		t.data.u32(a.Location.Start)
		t.data.u32(a.Location.End)
	}
	return nil
}

type decoratorInfo struct {
	tag    uint8
	offset uint32
}

// readDecorator decodes the decorator at info.offset of the data blob.
func readDecorator(info decoratorInfo, data []byte, base int, strs *StringTable) (mast.Decorator, error) {
	if int(info.offset) > len(data) {
		return nil, &DecodeError{Kind: ErrUnexpectedEOF, Section: "decorator data", Offset: base + len(data)}
	}
	r := subReader(data[info.offset:], base+int(info.offset), "decorator data")

	str := func() string {
		id := StringID(r.u32())
		if r.err != nil {
			return ""
		}
		s, ok := strs.Lookup(id)
		if !ok {
			r.fail(ErrInvalidValue, fmt.Sprintf("string id %d out of range", id))
		}
		return s
	}

	var d mast.Decorator
	switch info.tag {
	case decAsmOp:
		flags := r.u8()
		if flags&^(asmHasLocation|asmShouldBreak) != 0 {
			r.fail(ErrInvalidValue, fmt.Sprintf("asmop flags %#x", flags))
		}
		a := mast.AsmOp{NumCycles: r.u8(), ShouldBreak: flags&asmShouldBreak != 0}
		a.ContextName = str()
		a.Op = str()
		if flags&asmHasLocation != 0 {
			loc := &mast.Location{Path: str()}
			loc.Start = r.u32()
			loc.End = r.u32()
			a.Location = loc
		}
		d = a
	case decDebugStackAll:
		d = mast.DebugStack()
	case decDebugStackTop:
		d = mast.DebugStackTopN(r.u8())
	case decDebugMemAll:
		d = mast.DebugMem()
	case decDebugMemInterval:
		start := r.u32()
		d = mast.DebugMemRange(start, r.u32())
	case decDebugLocalInterval:
		v := mast.Debug{Mode: mast.DebugLocalInterval}
		v.Start = r.u32()
		v.End = r.u32()
		v.NumLocals = r.u16()
		d = v
	case decTrace:
		d = mast.Trace{ID: r.u32()}
	default:
		return nil, &DecodeError{Kind: ErrInvalidValue, Section: "decorator info", Offset: base, Msg: fmt.Sprintf("decorator tag %d", info.tag)}
	}
	if r.err != nil {
		return nil, r.err
	}
	return d, nil
}
