package mastbin

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// writer appends little-endian values to a buffer.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) u16(v uint16) {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *writer) u32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *writer) u64(v uint64) {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// uint writes v in width bytes; v must fit.
func (w *writer) uint(v uint64, width int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:width])
}

func (w *writer) digest(d digest.Digest) { w.buf.Write(d[:]) }

// count writes a u32 length prefix.
func (w *writer) count(n int, what string) error {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return fmt.Errorf("too many %s: %w", what, err)
	}
	w.u32(v)
	return nil
}

func (w *writer) blob(b []byte, what string) error {
	if err := w.count(len(b), what); err != nil {
		return err
	}
	w.buf.Write(b)
	return nil
}

func (w *writer) len() int { return w.buf.Len() }

func (w *writer) bytes() []byte { return w.buf.Bytes() }

// reader consumes little-endian values. The first short read records an
// ErrUnexpectedEOF; later reads return zero values, so callers check err once
// per logical step.
type reader struct {
	data    []byte
	off     int
	base    int // offset of data within the whole stream
	section string
	err     error
}

func newReader(data []byte) *reader { return &reader{data: data} }

// subReader reads a nested segment whose first byte sits at base in the stream.
func subReader(data []byte, base int, section string) *reader {
	return &reader{data: data, base: base, section: section}
}

func (r *reader) pos() int { return r.base + r.off }

func (r *reader) fail(kind ErrorKind, msg string) {
	if r.err == nil {
		r.err = &DecodeError{Kind: kind, Section: r.section, Offset: r.pos(), Msg: msg}
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.fail(ErrUnexpectedEOF, "")
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) uint(width int) uint64 {
	b := r.take(width)
	if b == nil {
		return 0
	}
	var full [8]byte
	copy(full[:], b)
	return binary.LittleEndian.Uint64(full[:])
}

func (r *reader) digest() digest.Digest {
	var d digest.Digest
	copy(d[:], r.take(digestLen))
	return d
}

// count reads a u32 count and checks that at least count*minSize bytes
// remain, so corrupt counts cannot trigger huge allocations.
func (r *reader) count(minSize int) int {
	n := int(r.u32())
	if r.err != nil {
		return 0
	}
	if minSize > 0 && n > (len(r.data)-r.off)/minSize {
		r.fail(ErrUnexpectedEOF, "")
		return 0
	}
	return n
}

func (r *reader) blob() []byte {
	n := r.count(1)
	return r.take(n)
}

func (r *reader) remaining() int { return len(r.data) - r.off }
