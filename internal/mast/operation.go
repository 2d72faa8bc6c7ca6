package mast

import (
	"fmt"
	"strconv"
)

// Opcode identifies a VM operation inside a basic block.
type Opcode uint8

const (
	OpNoop Opcode = iota
	OpAssert
	OpFmpAdd
	OpFmpUpdate
	OpSDepth
	OpCaller
	OpClk
	OpEmit
	OpAdd
	OpNeg
	OpMul
	OpInv
	OpIncr
	OpAnd
	OpOr
	OpNot
	OpEq
	OpEqz
	OpExpacc
	OpU32Split
	OpU32Add
	OpU32Add3
	OpU32Sub
	OpU32Mul
	OpU32Madd
	OpU32Div
	OpU32And
	OpU32Xor
	OpU32Assert2
	OpPad
	OpDrop
	OpDup
	OpSwap
	OpSwapW
	OpCSwap
	OpCSwapW
	OpMovUp
	OpMovDn
	OpPush
	OpAdvPop
	OpAdvPopW
	OpMLoad
	OpMStore
	OpMLoadW
	OpMStoreW
	OpMStream
	OpPipe
	OpHPerm
	OpMpVerify
	OpMrUpdate
	OpFriE2F4
	OpHornerBase
	OpHornerExt

	opcodeCount
)

// ImmediateClass tells how an operation's immediate participates in hashing.
type ImmediateClass uint8

const (
	// ImmNone: the operation has no immediate.
	ImmNone ImmediateClass = iota
	// ImmDigest: the immediate is part of the block digest.
	ImmDigest
	// ImmTamper: the immediate (an error code) does not change execution and is
	// kept out of the digest, but it is hashed into the fingerprint so that
	// blocks differing only in error codes are never deduplicated.
	ImmTamper
)

type opcodeInfo struct {
	name  string
	class ImmediateClass
	width uint8 // encoded immediate width in bytes
}

var opcodeTable = [opcodeCount]opcodeInfo{
	OpNoop:       {"noop", ImmNone, 0},
	OpAssert:     {"assert", ImmTamper, 4},
	OpFmpAdd:     {"fmpadd", ImmNone, 0},
	OpFmpUpdate:  {"fmpupdate", ImmNone, 0},
	OpSDepth:     {"sdepth", ImmNone, 0},
	OpCaller:     {"caller", ImmNone, 0},
	OpClk:        {"clk", ImmNone, 0},
	OpEmit:       {"emit", ImmDigest, 4},
	OpAdd:        {"add", ImmNone, 0},
	OpNeg:        {"neg", ImmNone, 0},
	OpMul:        {"mul", ImmNone, 0},
	OpInv:        {"inv", ImmNone, 0},
	OpIncr:       {"incr", ImmNone, 0},
	OpAnd:        {"and", ImmNone, 0},
	OpOr:         {"or", ImmNone, 0},
	OpNot:        {"not", ImmNone, 0},
	OpEq:         {"eq", ImmNone, 0},
	OpEqz:        {"eqz", ImmNone, 0},
	OpExpacc:     {"expacc", ImmNone, 0},
	OpU32Split:   {"u32split", ImmNone, 0},
	OpU32Add:     {"u32add", ImmNone, 0},
	OpU32Add3:    {"u32add3", ImmNone, 0},
	OpU32Sub:     {"u32sub", ImmNone, 0},
	OpU32Mul:     {"u32mul", ImmNone, 0},
	OpU32Madd:    {"u32madd", ImmNone, 0},
	OpU32Div:     {"u32div", ImmNone, 0},
	OpU32And:     {"u32and", ImmNone, 0},
	OpU32Xor:     {"u32xor", ImmNone, 0},
	OpU32Assert2: {"u32assert2", ImmTamper, 4},
	OpPad:        {"pad", ImmNone, 0},
	OpDrop:       {"drop", ImmNone, 0},
	OpDup:        {"dup", ImmDigest, 1},
	OpSwap:       {"swap", ImmNone, 0},
	OpSwapW:      {"swapw", ImmNone, 0},
	OpCSwap:      {"cswap", ImmNone, 0},
	OpCSwapW:     {"cswapw", ImmNone, 0},
	OpMovUp:      {"movup", ImmDigest, 1},
	OpMovDn:      {"movdn", ImmDigest, 1},
	OpPush:       {"push", ImmDigest, 8},
	OpAdvPop:     {"advpop", ImmNone, 0},
	OpAdvPopW:    {"advpopw", ImmNone, 0},
	OpMLoad:      {"mload", ImmNone, 0},
	OpMStore:     {"mstore", ImmNone, 0},
	OpMLoadW:     {"mloadw", ImmNone, 0},
	OpMStoreW:    {"mstorew", ImmNone, 0},
	OpMStream:    {"mstream", ImmNone, 0},
	OpPipe:       {"pipe", ImmNone, 0},
	OpHPerm:      {"hperm", ImmNone, 0},
	OpMpVerify:   {"mpverify", ImmTamper, 4},
	OpMrUpdate:   {"mrupdate", ImmNone, 0},
	OpFriE2F4:    {"frie2f4", ImmNone, 0},
	OpHornerBase: {"horner_base", ImmNone, 0},
	OpHornerExt:  {"horner_ext", ImmNone, 0},
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool { return op < opcodeCount }

func (op Opcode) String() string {
	if !op.Valid() {
		return "opcode(" + strconv.Itoa(int(op)) + ")"
	}
	return opcodeTable[op].name
}

// ImmediateClass returns how the immediate of op is hashed.
func (op Opcode) ImmediateClass() ImmediateClass {
	if !op.Valid() {
		return ImmNone
	}
	return opcodeTable[op].class
}

// ImmediateWidth is the number of bytes the immediate takes in the binary format.
func (op Opcode) ImmediateWidth() int {
	if !op.Valid() {
		return 0
	}
	return int(opcodeTable[op].width)
}

// Operation is a single VM instruction. Imm is meaningful only for opcodes with
// an immediate and must fit in ImmediateWidth bytes.
type Operation struct {
	Op  Opcode
	Imm uint64
}

// Op builds an operation without an immediate.
func Op(code Opcode) Operation { return Operation{Op: code} }

// Push builds a push of a field element.
func Push(value uint64) Operation { return Operation{Op: OpPush, Imm: value} }

// Assert builds an assertion with an error code.
func Assert(errCode uint32) Operation { return Operation{Op: OpAssert, Imm: uint64(errCode)} }

// U32Assert2 builds a u32 range assertion with an error code.
func U32Assert2(errCode uint32) Operation {
	return Operation{Op: OpU32Assert2, Imm: uint64(errCode)}
}

// MpVerify builds a merkle path verification with an error code.
func MpVerify(errCode uint32) Operation { return Operation{Op: OpMpVerify, Imm: uint64(errCode)} }

// Emit builds an event emission.
func Emit(event uint32) Operation { return Operation{Op: OpEmit, Imm: uint64(event)} }

// Dup duplicates the stack element at index n.
func Dup(n uint8) Operation { return Operation{Op: OpDup, Imm: uint64(n)} }

// MovUp moves the element at index n to the top of the stack.
func MovUp(n uint8) Operation { return Operation{Op: OpMovUp, Imm: uint64(n)} }

// MovDn moves the top of the stack to index n.
func MovDn(n uint8) Operation { return Operation{Op: OpMovDn, Imm: uint64(n)} }

// validate checks the opcode and immediate width.
func (o Operation) validate() error {
	if !o.Op.Valid() {
		return fmt.Errorf("unknown opcode %d", uint8(o.Op))
	}
	width := o.Op.ImmediateWidth()
	if width == 0 {
		if o.Imm != 0 {
			return fmt.Errorf("%s takes no immediate, got %d", o.Op, o.Imm)
		}
		return nil
	}
	if width < 8 && o.Imm>>(8*uint(width)) != 0 {
		return fmt.Errorf("%s immediate %d does not fit in %d bytes", o.Op, o.Imm, width)
	}
	return nil
}

func (o Operation) String() string {
	if o.Op.ImmediateWidth() == 0 {
		return o.Op.String()
	}
	return o.Op.String() + "." + strconv.FormatUint(o.Imm, 10)
}
