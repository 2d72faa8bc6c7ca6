// Package mastbin reads and writes MAST forests and programs in a compact,
// self-verifying binary format.
//
// A stream is a header followed by sections, each starting with a u32 count or
// byte length. All integers are little-endian:
//
//	header      "MAST" | version [3]byte | kind byte
//	nodes       count | (u64 word, [32]byte digest)*
//	blocks      len | block data
//	dec info    count | (u8 tag, u32 offset)*
//	dec data    len | bytes
//	strings     count | (u32 len, bytes)*
//	node decs   count | (before ids, after ids)*
//	advice      count | ([32]byte key, u32 len, bytes)*
//	roots       count | u32*
//	program     u32 entrypoint | count | [32]byte*   (program artifacts only)
//
// Decoding rebuilds every node through the mast constructors, so a decoded
// forest satisfies the same invariants as a freshly built one, and checks
// each stored digest against the recomputed one.
package mastbin

import (
	"fmt"

	"github.com/obellish/vmm-sub002/internal/mast"
)

// Magic opens every artifact.
var Magic = [4]byte{'M', 'A', 'S', 'T'}

// Version is the format version written by this package.
var Version = [3]byte{0, 1, 0}

// Kind tells what an artifact holds.
type Kind uint8

const (
	KindForest Kind = iota
	KindProgram
)

func (k Kind) String() string {
	switch k {
	case KindForest:
		return "forest"
	case KindProgram:
		return "program"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Extension is the conventional file extension of an artifact kind.
func (k Kind) Extension() string {
	if k == KindProgram {
		return ".masp"
	}
	return ".masf"
}

// node tags, stored in the top 4 bits of the node word
const (
	tagJoin     uint8 = 0
	tagSplit    uint8 = 1
	tagLoop     uint8 = 2
	tagBlock    uint8 = 3
	tagCall     uint8 = 4
	tagSyscall  uint8 = 5
	tagDyn      uint8 = 6
	tagDynCall  uint8 = 7
	tagExternal uint8 = 8
)

const (
	tagShift  = 60
	idBits    = 30
	idMask    = 1<<idBits - 1
	wordMask  = 1<<tagShift - 1
	u32Mask   = 1<<32 - 1
	digestLen = 32
)

// packPair packs two 30-bit ids below the tag.
func packPair(tag uint8, a, b mast.NodeID) uint64 {
	return uint64(tag)<<tagShift | uint64(a)&idMask<<idBits | uint64(b)&idMask
}

func packOne(tag uint8, payload uint32) uint64 {
	return uint64(tag)<<tagShift | uint64(payload)
}

func wordTag(w uint64) uint8 { return uint8(w >> tagShift) }

func unpackPair(w uint64) (mast.NodeID, mast.NodeID) {
	return mast.NodeID(w >> idBits & idMask), mast.NodeID(w & idMask)
}

// unpackOne returns the 32-bit payload and whether the unused bits are clear.
func unpackOne(w uint64) (uint32, bool) {
	return uint32(w & u32Mask), w&wordMask>>32 == 0
}

// decorator tags in the info table
const (
	decAsmOp uint8 = iota
	decDebugStackAll
	decDebugStackTop
	decDebugMemAll
	decDebugMemInterval
	decDebugLocalInterval
	decTrace
	decTagCount
)

// asmop flags
const (
	asmHasLocation uint8 = 1 << iota
	asmShouldBreak
)
