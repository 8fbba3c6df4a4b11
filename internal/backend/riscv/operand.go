package riscv

import "fmt"

// Operand is an LIR value reference: an immediate, a virtual
// register awaiting allocation, a global symbol's address, or a
// frame-relative local's address. This mirrors spec.md §4.11's
// operand-position distinction (global / functional / local) one
// level below `internal/mir`'s own Value interface, grounded on
// `Backend::Variable::VariableWide`'s GLOBAL/FUNCTIONAL/LOCAL tags.
type Operand interface {
	isOperand()
	String() string
}

// Imm is a compile-time constant, integer or float.
type Imm struct {
	Float bool
	I     int32
	F     float64
}

func (Imm) isOperand() {}
func (i Imm) String() string {
	if i.Float {
		return fmt.Sprintf("%g", i.F)
	}
	return fmt.Sprintf("%d", i.I)
}

// VReg is a virtual register, pre-allocation: one per MIR value that
// carries a runtime result (instruction results, PHI destinations,
// parameters). Allocated to a hardware register or a stack slot by
// regalloc.go.
type VReg struct {
	ID    int
	Class regClass
}

func (VReg) isOperand() {}
func (v VReg) String() string { return fmt.Sprintf("v%d", v.ID) }

// Global names a module-level symbol: a global variable or a
// constant-string label, referenced by its assembler symbol name.
type Global struct {
	Symbol string
}

func (Global) isOperand() {}
func (g Global) String() string { return g.Symbol }

// FrameSlot is a local's byte offset from the frame pointer (s0),
// assigned once per ALLOC at lowering time. Every local lives in the
// frame regardless of whether the allocator later also gives its
// *value* a register — ALLOC itself always denotes an address, so it
// always needs frame space.
type FrameSlot struct {
	Offset int
}

func (FrameSlot) isOperand() {}
func (f FrameSlot) String() string { return fmt.Sprintf("%d(s0)", f.Offset) }
