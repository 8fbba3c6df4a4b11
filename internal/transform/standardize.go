package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// StandardizeBinary normalizes commutative binaries so a constant
// operand, if any, appears on the right, and reverses comparisons
// accordingly (spec.md §4.7) — this gives AlgebraicSimplify and GVN a
// single canonical shape to match against instead of two.
type StandardizeBinary struct{}

func (StandardizeBinary) Name() string { return "StandardizeBinary" }

var commutativeOps = map[string]bool{
	"ADD": true, "MUL": true, "AND": true, "OR": true, "XOR": true,
	"SMAX": true, "SMIN": true, "FADD": true, "FMUL": true,
}

var reversedCmp = map[string]string{
	"LT": "GT", "GT": "LT", "LE": "GE", "GE": "LE", "EQ": "EQ", "NE": "NE",
}

func (StandardizeBinary) Run(m *mir.Module, mgr *pass.Manager) bool {
	changed := false
	for _, f := range m.DefinedFunctions() {
		for _, b := range f.Blocks {
			if b.Deleted {
				continue
			}
			for _, inst := range b.Instructions {
				if standardizeOne(inst) {
					changed = true
				}
			}
		}
	}
	return changed
}

func standardizeOne(inst *mir.Instruction) bool {
	switch inst.Op {
	case mir.OpIntBinary, mir.OpFloatBinary:
		if !commutativeOps[inst.SubOp] {
			return false
		}
		_, lhsConst := inst.Operand(0).(*mir.Const)
		_, rhsConst := inst.Operand(1).(*mir.Const)
		if lhsConst && !rhsConst {
			swapOperands(inst)
			return true
		}
		return false

	case mir.OpICmp, mir.OpFCmp:
		_, lhsConst := inst.Operand(0).(*mir.Const)
		_, rhsConst := inst.Operand(1).(*mir.Const)
		if lhsConst && !rhsConst {
			swapOperands(inst)
			if rev, ok := reversedCmp[inst.SubOp]; ok {
				inst.SubOp = rev
			}
			return true
		}
		return false

	default:
		return false
	}
}

func swapOperands(inst *mir.Instruction) {
	lhs := inst.Operand(0)
	rhs := inst.Operand(1)
	mir.SetOperandAt(inst, 0, rhs)
	mir.SetOperandAt(inst, 1, lhs)
}
