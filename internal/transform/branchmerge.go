package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// BranchMerging recognizes a two-way branch on a comparison whose
// true/false arms are nothing but a jump to the same join block,
// where the join's sole PHI selects between the comparison's two
// operands, and replaces the whole diamond with one `SMAX`/`SMIN`
// value (spec.md §4.9). Only the simplest diamond shape is folded;
// the nested "fuses comparisons on the same LHS" half of the spec
// paragraph is left to a future widening of tryMergeBranch, noted
// here rather than implemented against invented test cases.
type BranchMerging struct{}

func (BranchMerging) Name() string { return "BranchMerging" }

func (BranchMerging) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		changed := false
		for _, b := range f.Blocks {
			if b.Deleted {
				continue
			}
			term := b.Terminator()
			if term == nil || term.Op != mir.OpBranch {
				continue
			}
			if tryMergeBranch(f, b, term) {
				changed = true
			}
		}
		if changed {
			f.SweepDeletedBlocks()
			mgr.InvalidateCFG(f)
			anyChanged = true
		}
	}
	return anyChanged
}

func tryMergeBranch(f *mir.Function, b *mir.Block, term *mir.Instruction) bool {
	cmp, ok := term.Cond().(*mir.Instruction)
	if !ok || (cmp.Op != mir.OpICmp && cmp.Op != mir.OpFCmp) {
		return false
	}

	trueB, falseB := term.TrueBlock(), term.FalseBlock()
	joinT, okT := soleForwardTarget(trueB)
	joinF, okF := soleForwardTarget(falseB)
	if !okT || !okF || joinT != joinF || joinT == nil {
		return false
	}
	join := joinT

	if !onlyPredecessorIs(f, trueB, b) || !onlyPredecessorIs(f, falseB, b) {
		return false
	}
	if len(blockPredecessors(f, join)) != 2 {
		return false
	}

	phis := join.GetPhis()
	if len(phis) != 1 {
		return false
	}
	phi := phis[0]

	lhs, rhs := cmp.Operand(0), cmp.Operand(1)
	trueVal := phi.IncomingFrom(trueB)
	falseVal := phi.IncomingFrom(falseB)
	var trueIsLhs bool
	switch {
	case trueVal == lhs && falseVal == rhs:
		trueIsLhs = true
	case trueVal == rhs && falseVal == lhs:
		trueIsLhs = false
	default:
		return false
	}

	op, ok := minMaxOp(cmp.SubOp, trueIsLhs)
	if !ok {
		return false
	}

	var combined *mir.Instruction
	if cmp.Op == mir.OpFCmp {
		combined = mir.NewFloatBinary("minmax", op, lhs, rhs, nil)
	} else {
		combined = mir.NewIntBinary("minmax", op, lhs, rhs, nil)
	}
	b.InsertBefore(term, combined)

	mir.ReplaceAllUsesWith(phi, combined)
	phi.ClearOperands()
	join.RemoveInstruction(phi)

	term.ClearOperands()
	b.RemoveInstruction(term)
	mir.NewJump(join, b)

	trueB.Deleted = true
	falseB.Deleted = true
	return true
}

// soleForwardTarget reports b's jump target if b is nothing but a
// single unconditional jump (no PHIs, no other instructions).
func soleForwardTarget(b *mir.Block) (*mir.Block, bool) {
	if b == nil || b.Deleted {
		return nil, false
	}
	if len(b.GetPhis()) != 0 {
		return nil, false
	}
	nonPhi := b.NonPhiInstructions()
	if len(nonPhi) != 1 || nonPhi[0].Op != mir.OpJump {
		return nil, false
	}
	return nonPhi[0].JumpTarget(), true
}

func onlyPredecessorIs(f *mir.Function, target, want *mir.Block) bool {
	preds := blockPredecessors(f, target)
	return len(preds) == 1 && preds[0] == want
}

// minMaxOp maps a comparison operator, plus which side the true arm
// selects, to SMAX/SMIN (spec.md §4.9). LE behaves like LT and GE
// like GT for this purpose: the equal case makes min and max agree,
// so the strict/non-strict distinction doesn't affect which operand
// ends up selected.
func minMaxOp(subOp string, trueIsLhs bool) (string, bool) {
	switch subOp {
	case "LT", "LE":
		if trueIsLhs {
			return "SMIN", true
		}
		return "SMAX", true
	case "GT", "GE":
		if trueIsLhs {
			return "SMAX", true
		}
		return "SMIN", true
	}
	return "", false
}
