package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// GEPFold collapses a GEP-of-GEP chain into a single GEP (spec.md
// §4.8): when a GEP's base is itself a single-use GEP, the inner
// GEP's trailing index and the outer GEP's leading index both walk
// the same pointer indirection level, so they collapse into one
// summed index (constant-folded via SafeCal when both are constant,
// otherwise rebuilt as an explicit ADD) with the remaining indices of
// both concatenated around it. Runs to a fixpoint so an arbitrarily
// long chain collapses one link per iteration.
type GEPFold struct{}

func (GEPFold) Name() string { return "GEPFold" }

func (GEPFold) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		for changed := true; changed; {
			changed = false
			for _, b := range f.Blocks {
				if b.Deleted {
					continue
				}
				snapshot := append([]*mir.Instruction(nil), b.Instructions...)
				for _, inst := range snapshot {
					if inst.GetBlock() != b || inst.Op != mir.OpGep {
						continue
					}
					if foldGepChain(inst) {
						changed = true
						anyChanged = true
					}
				}
			}
		}
	}
	return anyChanged
}

func foldGepChain(outer *mir.Instruction) bool {
	inner, ok := outer.GepBase().(*mir.Instruction)
	if !ok || inner.Op != mir.OpGep || len(inner.Users()) != 1 {
		return false
	}
	innerIdx := inner.GepIndices()
	outerIdx := outer.GepIndices()
	if len(innerIdx) == 0 || len(outerIdx) == 0 {
		return false
	}

	b := outer.GetBlock()
	combined := mergeIndex(b, outer, innerIdx[len(innerIdx)-1], outerIdx[0])
	merged := append([]mir.Value(nil), innerIdx[:len(innerIdx)-1]...)
	merged = append(merged, combined)
	merged = append(merged, outerIdx[1:]...)

	newGep := mir.NewGep(outer.ValName(), inner.GepBase(), merged, outer.ValType(), nil)
	b.InsertBefore(outer, newGep)
	mir.ReplaceAllUsesWith(outer, newGep)
	outer.ClearOperands()
	b.RemoveInstruction(outer)
	inner.ClearOperands()
	inner.GetBlock().RemoveInstruction(inner)
	return true
}

// mergeIndex sums two GEP indices, constant-folding when possible and
// otherwise inserting an explicit ADD just before insertPoint.
func mergeIndex(b *mir.Block, insertPoint *mir.Instruction, a, c mir.Value) mir.Value {
	ac, aok := a.(*mir.Const)
	cc, cok := c.(*mir.Const)
	if aok && cok {
		if sum, ok := mir.SafeCal("ADD", ac.Eval(), cc.Eval()); ok {
			return mir.ConstFromEval(sum, ac.ValType())
		}
	}
	add := mir.NewIntBinary("", "ADD", a, c, nil)
	b.InsertBefore(insertPoint, add)
	return add
}
