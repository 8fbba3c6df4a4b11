package transform

import (
	"fmt"

	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// GlobalValueNumbering is a dominator-tree-scoped hash-consing pass
// (spec.md §4.7): a key encodes opcode, result type, and operand
// identity (commutative operands sorted so a DUP key matches either
// order); on exiting a dominator-tree subtree, keys introduced inside
// it are removed, so a numbered expression only ever substitutes for
// uses it dominates. It runs a constant-folding pre-pass and brackets
// itself with AlgebraicSimplify/DeadInstEliminate, per spec.md.
type GlobalValueNumbering struct{}

func (GlobalValueNumbering) Name() string { return "GlobalValueNumbering" }

func (g GlobalValueNumbering) Run(m *mir.Module, mgr *pass.Manager) bool {
	ConstantFolding{}.Run(m, mgr)
	changed := false
	for _, f := range m.DefinedFunctions() {
		AlgebraicSimplify{}.Run(m, mgr)
		DeadInstEliminate{}.Run(m, mgr)
		if g.runOnFunction(f, mgr) {
			changed = true
		}
		AlgebraicSimplify{}.Run(m, mgr)
		DeadInstEliminate{}.Run(m, mgr)
	}
	return changed
}

func (GlobalValueNumbering) runOnFunction(f *mir.Function, mgr *pass.Manager) bool {
	if f.Entry() == nil {
		return false
	}
	dom := analysis.DominanceOf(mgr, f)
	summaries := analysis.SummariesOf(mgr)

	table := map[string]mir.Value{}
	changed := false

	var walk func(b *mir.Block)
	walk = func(b *mir.Block) {
		var introduced []string
		snapshot := append([]*mir.Instruction(nil), b.Instructions...)
		for _, inst := range snapshot {
			if inst.GetBlock() != b || inst.Op == mir.OpPhi {
				continue
			}
			key, ok := gvnKey(inst, summaries)
			if !ok {
				continue
			}
			if existing, found := table[key]; found {
				mir.ReplaceAllUsesWith(inst, existing)
				inst.ClearOperands()
				b.RemoveInstruction(inst)
				changed = true
				continue
			}
			table[key] = inst
			introduced = append(introduced, key)
		}
		for _, c := range dom.Children[b] {
			walk(c)
		}
		for _, k := range introduced {
			delete(table, k)
		}
	}
	walk(dom.Entry)
	return changed
}

func gvnKey(inst *mir.Instruction, summaries *analysis.SummaryResult) (string, bool) {
	switch inst.Op {
	case mir.OpIntBinary, mir.OpFloatBinary, mir.OpICmp, mir.OpFCmp:
		a, b := operandKey(inst.Operand(0)), operandKey(inst.Operand(1))
		if commutativeOps[inst.SubOp] && a > b {
			a, b = b, a
		}
		return fmt.Sprintf("%s:%s:%p(%s,%s)", inst.Op, inst.SubOp, inst.ValType(), a, b), true

	case mir.OpGep:
		parts := []string{operandKey(inst.GepBase())}
		for _, idx := range inst.GepIndices() {
			parts = append(parts, operandKey(idx))
		}
		return fmt.Sprintf("gep:%p(%v)", inst.ValType(), parts), true

	case mir.OpBitcast:
		return fmt.Sprintf("bitcast:%p(%s)", inst.ValType(), operandKey(inst.Operand(0))), true

	case mir.OpLoad:
		return "", false // handled by load elimination, not GVN

	case mir.OpCall:
		callee := inst.Callee()
		if callee == nil {
			return "", false
		}
		s := summaries.Of(callee)
		if !(s.NoState && s.HasReturn && !s.IORead && !s.IOWrite) {
			return "", false
		}
		parts := []string{callee.Name}
		for _, a := range inst.Args() {
			parts = append(parts, operandKey(a))
		}
		return fmt.Sprintf("call(%v)", parts), true

	default:
		return "", false
	}
}

func operandKey(v mir.Value) string {
	if v == nil {
		return "nil"
	}
	if c, ok := v.(*mir.Const); ok {
		return fmt.Sprintf("const:%s", c.String())
	}
	return fmt.Sprintf("%p", v)
}
