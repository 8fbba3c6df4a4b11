package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// DeadInstEliminate removes instructions nobody uses and that have no
// side effect of their own: pure arithmetic, loads, GEP, bitcast, and
// calls to functions analysis has proven NoState (spec.md §4.7). It
// iterates to a fixpoint within a function since removing one dead
// instruction can make one of its operands newly dead.
type DeadInstEliminate struct{}

func (DeadInstEliminate) Name() string { return "DeadInstEliminate" }

func (DeadInstEliminate) Run(m *mir.Module, mgr *pass.Manager) bool {
	summaries := analysis.SummariesOf(mgr)
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
					if inst.GetBlock() != b {
						continue
					}
					if isPureDead(inst, summaries) {
						inst.ClearOperands()
						b.RemoveInstruction(inst)
						changed = true
						anyChanged = true
					}
				}
			}
		}
	}
	return anyChanged
}

// isPureDead reports whether inst has no users and no effect that
// removing it could observably lose.
func isPureDead(inst *mir.Instruction, summaries *analysis.SummaryResult) bool {
	if len(inst.Users()) > 0 {
		return false
	}
	switch inst.Op {
	case mir.OpAlloc, mir.OpLoad, mir.OpGep, mir.OpBitcast,
		mir.OpIntBinary, mir.OpFloatBinary, mir.OpFloatTernary, mir.OpFNeg,
		mir.OpICmp, mir.OpFCmp, mir.OpZExt, mir.OpFPToSI, mir.OpSIToFP, mir.OpPhi:
		return true
	case mir.OpCall:
		callee := inst.Callee()
		return callee != nil && !callee.Runtime && summaries.Of(callee).NoState
	default:
		return false // store, branch, jump, switch, ret always stay
	}
}

// AggressiveDCE seeds a "useful" set with terminators, effectful
// calls, and stores (plus anything reachable backward from them
// through operands), then deletes everything else in the function —
// spec.md §4.7's more aggressive sweep, useful once Mem2Reg and the
// scalar passes have run and left behind pure computation no ordinary
// use-count check reaches because it feeds only other dead code in a
// cycle (e.g. a PHI that only feeds itself).
type AggressiveDCE struct{}

func (AggressiveDCE) Name() string { return "AggressiveDCE" }

func (AggressiveDCE) Run(m *mir.Module, mgr *pass.Manager) bool {
	summaries := analysis.SummariesOf(mgr)
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		if runAggressiveDCEOnFunction(f, summaries) {
			anyChanged = true
			mgr.InvalidateCFG(f)
		}
	}
	return anyChanged
}

func runAggressiveDCEOnFunction(f *mir.Function, summaries *analysis.SummaryResult) bool {
	useful := map[*mir.Instruction]bool{}
	var worklist []*mir.Instruction

	mark := func(inst *mir.Instruction) {
		if inst != nil && !useful[inst] {
			useful[inst] = true
			worklist = append(worklist, inst)
		}
	}

	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			switch inst.Op {
			case mir.OpStore, mir.OpBranch, mir.OpJump, mir.OpSwitch, mir.OpRet:
				mark(inst)
			case mir.OpCall:
				callee := inst.Callee()
				if callee == nil || callee.Runtime || summaries.Of(callee).HasSideEffect ||
					summaries.Of(callee).MemoryWrite || summaries.Of(callee).IOWrite {
					mark(inst)
				}
			}
		}
	}

	for len(worklist) > 0 {
		inst := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, operand := range inst.GetOperands() {
			if opInst, ok := operand.(*mir.Instruction); ok {
				mark(opInst)
			}
		}
	}

	changed := false
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		snapshot := append([]*mir.Instruction(nil), b.Instructions...)
		for _, inst := range snapshot {
			if inst.GetBlock() != b || useful[inst] {
				continue
			}
			inst.ClearOperands()
			b.RemoveInstruction(inst)
			changed = true
		}
	}
	return changed
}

// DeadFuncEliminate drops defined, non-main functions with zero
// callers (spec.md §4.7). Runs to a fixpoint: deleting a function can
// orphan one it was the sole caller of.
type DeadFuncEliminate struct{}

func (DeadFuncEliminate) Name() string { return "DeadFuncEliminate" }

func (DeadFuncEliminate) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for changed := true; changed; {
		changed = false
		cg := analysis.CallGraphOf(mgr)
		for _, f := range m.DefinedFunctions() {
			if f == m.Main {
				continue
			}
			if len(cg.Reverse[f]) == 0 {
				m.DeleteFunction(f)
				changed = true
				anyChanged = true
			}
		}
		if changed {
			mgr.InvalidateAll(nil)
		}
	}
	return anyChanged
}

// DeadFuncArgEliminate drops parameters that are never read, or are
// only ever read back into the same-position argument of a recursive
// self-call (spec.md §4.7) — a classic "accumulator never used"
// shape. It rewrites every call site to match before shrinking the
// signature, so this touches the whole module in one pass rather than
// per-function.
type DeadFuncArgEliminate struct{}

func (DeadFuncArgEliminate) Name() string { return "DeadFuncArgEliminate" }

func (DeadFuncArgEliminate) Run(m *mir.Module, mgr *pass.Manager) bool {
	changed := false
	for _, f := range m.DefinedFunctions() {
		if f == m.Main {
			continue
		}
		dead := deadArgIndices(f)
		if len(dead) == 0 {
			continue
		}
		removeArgsFromCallSites(m, f, dead)
		removeParams(f, dead)
		changed = true
	}
	if changed {
		mgr.InvalidateAll(nil)
	}
	return changed
}

// deadArgIndices finds parameter positions that are either unused, or
// used only as the corresponding argument of a recursive self-call.
func deadArgIndices(f *mir.Function) []int {
	var dead []int
	for _, arg := range f.Params {
		onlySelfFeed := true
		for _, u := range arg.Users() {
			if u.User.Op == mir.OpCall && u.User.Callee() == f &&
				u.Slot-1 == arg.Index { // slot 0 is the callee operand
				continue
			}
			onlySelfFeed = false
			break
		}
		if onlySelfFeed {
			dead = append(dead, arg.Index)
		}
	}
	return dead
}

func removeArgsFromCallSites(m *mir.Module, f *mir.Function, dead []int) {
	deadSet := map[int]bool{}
	for _, d := range dead {
		deadSet[d] = true
	}
	for _, caller := range m.Functions {
		for _, b := range caller.Blocks {
			if b.Deleted {
				continue
			}
			for _, inst := range b.Instructions {
				if inst.Op != mir.OpCall || inst.Callee() != f {
					continue
				}
				args := inst.Args()
				kept := []mir.Value{inst.Callee()}
				for i, a := range args {
					if !deadSet[i] {
						kept = append(kept, a)
					}
				}
				inst.ClearOperands()
				for i, v := range kept {
					mir.SetOperandAt(inst, i, v)
				}
			}
		}
	}
}

func removeParams(f *mir.Function, dead []int) {
	deadSet := map[int]bool{}
	for _, d := range dead {
		deadSet[d] = true
	}
	var kept []*mir.Argument
	for i, p := range f.Params {
		if deadSet[i] {
			continue // removeArgsFromCallSites already dropped every use of p
		}
		p.Index = len(kept)
		kept = append(kept, p)
	}
	f.Params = kept
}

// DeadReturnEliminate voids out a non-void function's return value
// when no caller ever consumes the call result (spec.md §4.7): the
// return type becomes void and each RET drops its operand, whose
// defining instruction stays in place for DCE to judge. Call sites are
// not rewritten; each keeps its result name and type, with no users.
type DeadReturnEliminate struct{}

func (DeadReturnEliminate) Name() string { return "DeadReturnEliminate" }

func (DeadReturnEliminate) Run(m *mir.Module, mgr *pass.Manager) bool {
	changed := false
	for _, f := range m.DefinedFunctions() {
		if f == m.Main || f.ReturnType == mir.VoidType {
			continue
		}
		if returnValueUsed(m, f) {
			continue
		}
		voidifyReturns(f)
		changed = true
	}
	if changed {
		mgr.InvalidateAll(nil)
	}
	return changed
}

func returnValueUsed(m *mir.Module, f *mir.Function) bool {
	for _, caller := range m.Functions {
		for _, b := range caller.Blocks {
			if b.Deleted {
				continue
			}
			for _, inst := range b.Instructions {
				if inst.Op == mir.OpCall && inst.Callee() == f && len(inst.Users()) > 0 {
					return true
				}
			}
		}
	}
	return false
}

func voidifyReturns(f *mir.Function) {
	f.ReturnType = mir.VoidType
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		term := b.Terminator()
		if term != nil && term.Op == mir.OpRet && term.RetValue() != nil {
			term.ClearOperands()
		}
	}
}
