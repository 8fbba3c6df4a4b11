// Package riscv implements spec.md §4.11's backend: MIR is lowered to
// a small RV64GC-shaped "LIR", PHIs are removed by parallel-copy
// resolution on predecessor edges, virtual registers are linear-scan
// allocated to the two RV64 register files (spilling to the stack
// frame under pressure), and the result is printed as GNU-assembler
// text. Grounded on `original_source/include/Backend/` (Value.h,
// MIR/Instructions.h, VariableTypes.h) for the operand/instruction
// shape, and on this module's own `internal/mir` for the closed
// sum-type instruction idiom the LIR reuses.
package riscv

// regClass distinguishes the integer and floating-point register
// files; RV64GC keeps them disjoint (x-registers vs f-registers), so
// every allocation decision is scoped to one class.
type regClass int

const (
	classInt regClass = iota
	classFloat
)

// Allocatable register pools. a0-a7/fa0-fa7 are reserved for the
// calling convention (argument/return marshalling happens via
// explicit moves in lower.go and emit.go) rather than drawn from by
// the allocator, so a call's argument setup can never collide with a
// value the allocator is still holding live in one of them across the
// call — the simplification DESIGN.md's backend entry notes: a
// real RV64 allocator would also reclaim a0-a7 as scratch between
// calls, at the cost of modelling call-clobber sets precisely.
// t5/t6 and ft9-ft11 are held out of the allocatable pools as the
// scratch registers emit.go uses to materialize a spilled operand (or
// an immediate) into a real register at its point of use; float needs
// a third scratch slot for FMADD/FMSUB's three source operands.
var (
	intPool = []string{
		"t0", "t1", "t2", "t3", "t4",
		"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	}
	floatPool = []string{
		"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7", "ft8",
		"fs0", "fs1", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
		"fs8", "fs9", "fs10", "fs11",
	}
)

// Argument/return registers per the standard RV64 calling convention
// (spec.md §4.11: "first four scalars in a0..a3, rest on the stack").
// We widen this to the full a0-a7/fa0-fa7 windows the ABI actually
// offers before spilling remaining arguments to the caller's stack,
// since a thirteen-function runtime library and recursive SysY-family
// programs routinely pass more than four scalars.
var (
	intArgRegs   = []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	floatArgRegs = []string{"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7"}
)

const (
	retIntReg   = "a0"
	retFloatReg = "fa0"
	linkReg     = "ra"
	frameReg    = "s0"
	stackReg    = "sp"
)

// scratchRegs returns the hardware registers of class c that are
// never handed to the allocator, reserved for rematerializing a
// spilled operand (or an immediate) into a real register at its use
// site. Int only ever needs two (an address and a value); float needs
// a third for FMADD/FMSUB's three source operands.
func scratchRegs(c regClass) []string {
	if c == classFloat {
		return []string{"ft9", "ft10", "ft11"}
	}
	return []string{"t5", "t6"}
}

// wordSize is the uniform per-scalar stack slot width this backend
// uses for every local, array element, and spill slot (a doubleword,
// matching spec.md §4.11's "two doublewords per local" note rounded
// up to one full XLEN slot per element for simplicity: i1/i8/i32
// locals trade density for a single uniform addressing stride).
const wordSize = 8

func pool(c regClass) []string {
	if c == classFloat {
		return floatPool
	}
	return intPool
}

func argRegs(c regClass) []string {
	if c == classFloat {
		return floatArgRegs
	}
	return intArgRegs
}
