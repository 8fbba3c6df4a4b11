package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// ConstantFolding evaluates every arithmetic/comparison/conversion
// instruction whose operands are all constants (spec.md §4.7), except
// the fused multiply-add forms (OpFloatTernary), which it leaves as
// they are. On
// success it RAUWs the instruction with the folded constant and
// deletes it; on safe_cal overflow, folding is silently abandoned for
// that instruction (spec.md §7).
type ConstantFolding struct{}

func (ConstantFolding) Name() string { return "ConstantFolding" }

func (ConstantFolding) Run(m *mir.Module, mgr *pass.Manager) bool {
	changed := false
	for _, f := range m.DefinedFunctions() {
		for _, b := range f.Blocks {
			if b.Deleted {
				continue
			}
			var dead []*mir.Instruction
			for _, inst := range b.Instructions {
				if c, ok := foldInstruction(inst); ok {
					mir.ReplaceAllUsesWith(inst, c)
					inst.ClearOperands()
					dead = append(dead, inst)
					changed = true
				}
			}
			for _, d := range dead {
				b.RemoveInstruction(d)
			}
		}
	}
	return changed
}

func foldInstruction(inst *mir.Instruction) (*mir.Const, bool) {
	switch inst.Op {
	case mir.OpIntBinary, mir.OpFloatBinary, mir.OpICmp, mir.OpFCmp:
		lhs, ok1 := inst.Operand(0).(*mir.Const)
		rhs, ok2 := inst.Operand(1).(*mir.Const)
		if !ok1 || !ok2 {
			return nil, false
		}
		v, ok := mir.SafeCal(inst.SubOp, lhs.Eval(), rhs.Eval())
		if !ok {
			return nil, false
		}
		return mir.ConstFromEval(v, inst.ValType()), true

	case mir.OpZExt:
		c, ok := inst.Operand(0).(*mir.Const)
		if !ok {
			return nil, false
		}
		return mir.ConstFromEval(c.Eval(), inst.ValType()), true

	case mir.OpFPToSI:
		c, ok := inst.Operand(0).(*mir.Const)
		if !ok {
			return nil, false
		}
		return mir.ConstInt(int32(c.Eval().AsFloat())), true

	case mir.OpSIToFP:
		c, ok := inst.Operand(0).(*mir.Const)
		if !ok {
			return nil, false
		}
		return mir.ConstFloat(float64(c.Eval().AsInt())), true

	case mir.OpFNeg:
		c, ok := inst.Operand(0).(*mir.Const)
		if !ok {
			return nil, false
		}
		return mir.ConstFloat(-c.Eval().AsFloat()), true

	default:
		return nil, false
	}
}
