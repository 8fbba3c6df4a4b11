// Package transform implements spec.md §4.6-§4.9's mutating passes as
// internal/pass.Transform implementations, each a stateless singleton
// retrieved through pass.Create.
package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Mem2Reg promotes scalar ALLOCs with only direct LOAD/STORE users
// into SSA values, via pruned-PHI dominance-frontier insertion and
// dominator-tree-DFS renaming (spec.md §4.6). This is the standard
// Cytron et al. SSA construction algorithm; no example repo in the
// corpus builds SSA form from allocas (kanso's IR is built directly
// in SSA form by its AST lowering), so this is implemented from the
// algorithm spec.md names rather than adapted from pack code.
type Mem2Reg struct{}

func (Mem2Reg) Name() string { return "Mem2Reg" }

func (m Mem2Reg) Run(mod *mir.Module, mgr *pass.Manager) bool {
	changed := false
	for _, f := range mod.DefinedFunctions() {
		if m.runOnFunction(f, mgr) {
			changed = true
		}
	}
	return changed
}

func (Mem2Reg) runOnFunction(f *mir.Function, mgr *pass.Manager) bool {
	if f.Entry() == nil {
		return false
	}
	allocs := promotableAllocs(f)
	if len(allocs) == 0 {
		return false
	}

	dom := analysis.DominanceOf(mgr, f)
	cfg := analysis.CFGOf(mgr, f)

	defBlocks := map[*mir.Instruction]map[*mir.Block]bool{}
	useBlocks := map[*mir.Instruction]map[*mir.Block]bool{}
	for _, a := range allocs {
		defBlocks[a] = map[*mir.Block]bool{}
		useBlocks[a] = map[*mir.Block]bool{}
	}
	for _, b := range cfg.Order {
		for _, inst := range b.Instructions {
			switch inst.Op {
			case mir.OpStore:
				if a, ok := inst.Operand(0).(*mir.Instruction); ok && defBlocks[a] != nil {
					defBlocks[a][b] = true
				}
			case mir.OpLoad:
				if a, ok := inst.Operand(0).(*mir.Instruction); ok && useBlocks[a] != nil {
					useBlocks[a][b] = true
				}
			}
		}
	}

	liveIn := map[*mir.Instruction]map[*mir.Block]bool{}
	for _, a := range allocs {
		liveIn[a] = computeLiveIn(f, cfg, a)
	}

	phis := map[*mir.Block]map[*mir.Instruction]*mir.Instruction{}
	for _, a := range allocs {
		frontierClosure := iteratedDominanceFrontier(dom, defBlocks[a])
		for b := range frontierClosure {
			if !liveIn[a][b] {
				continue // pruned: not live at this block's entry
			}
			if phis[b] == nil {
				phis[b] = map[*mir.Instruction]*mir.Instruction{}
			}
			if _, exists := phis[b][a]; exists {
				continue
			}
			pointee := a.ValType().Elem
			phi := mir.NewPhi(a.ValName()+".phi", pointee, nil)
			if mark := firstNonPhi(b); mark != nil {
				b.InsertBefore(mark, phi)
			} else {
				phi.SetBlock(b, true)
			}
			phis[b][a] = phi
		}
	}

	promotable := map[*mir.Instruction]bool{}
	for _, a := range allocs {
		promotable[a] = true
	}

	st := &renameState{
		stacks:     map[*mir.Instruction][]mir.Value{},
		phis:       phis,
		cfg:        cfg,
		promotable: promotable,
	}
	st.rename(dom.Entry, dom)

	for _, a := range allocs {
		a.ClearOperands()
		a.GetBlock().RemoveInstruction(a)
	}

	return true
}

func firstNonPhi(b *mir.Block) *mir.Instruction {
	nonPhi := b.NonPhiInstructions()
	if len(nonPhi) == 0 {
		return nil
	}
	return nonPhi[0]
}

// promotableAllocs returns every ALLOC of a scalar type whose only
// users are direct LOAD/STORE-to-this-address instructions (no
// address-taking, no array/struct pointee).
func promotableAllocs(f *mir.Function) []*mir.Instruction {
	var out []*mir.Instruction
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Op != mir.OpAlloc {
				continue
			}
			pointee := inst.ValType().Elem
			if pointee.IsArray() {
				continue
			}
			if isPromotable(inst) {
				out = append(out, inst)
			}
		}
	}
	return out
}

func isPromotable(alloc *mir.Instruction) bool {
	for _, u := range alloc.Users() {
		user := u.User
		switch user.Op {
		case mir.OpLoad:
			if user.Operand(0) != mir.Value(alloc) {
				return false
			}
		case mir.OpStore:
			if user.Operand(0) != mir.Value(alloc) {
				return false // alloc's address escapes as a stored value
			}
		default:
			return false
		}
	}
	return true
}

// iteratedDominanceFrontier is the closure of DF under itself: the
// set of blocks that need a PHI to merge reaching definitions from
// defBlocks (spec.md §4.6 step 2).
func iteratedDominanceFrontier(dom *analysis.DominanceResult, defBlocks map[*mir.Block]bool) map[*mir.Block]bool {
	result := map[*mir.Block]bool{}
	worklist := make([]*mir.Block, 0, len(defBlocks))
	for b := range defBlocks {
		worklist = append(worklist, b)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, df := range dom.Frontier[b] {
			if !result[df] {
				result[df] = true
				worklist = append(worklist, df)
			}
		}
	}
	return result
}

// computeLiveIn runs the classic backward UEVar/VarKill liveness
// dataflow for one alloc, to prune PHIs spec.md §4.6 says are only
// needed "for variables live at the frontier block entry".
func computeLiveIn(f *mir.Function, cfg *analysis.CFGResult, alloc *mir.Instruction) map[*mir.Block]bool {
	ueVar := map[*mir.Block]bool{}
	varKill := map[*mir.Block]bool{}
	for _, b := range cfg.Order {
		localKilled := false
		for _, inst := range b.Instructions {
			switch inst.Op {
			case mir.OpLoad:
				if inst.Operand(0) == mir.Value(alloc) && !localKilled {
					ueVar[b] = true
				}
			case mir.OpStore:
				if inst.Operand(0) == mir.Value(alloc) {
					localKilled = true
				}
			}
		}
		varKill[b] = localKilled
	}

	liveIn := map[*mir.Block]bool{}
	liveOut := map[*mir.Block]bool{}
	for changed := true; changed; {
		changed = false
		for i := len(cfg.Order) - 1; i >= 0; i-- {
			b := cfg.Order[i]
			out := false
			for _, s := range cfg.Succs[b] {
				if liveIn[s] {
					out = true
				}
			}
			in := ueVar[b] || (out && !varKill[b])
			if in != liveIn[b] || out != liveOut[b] {
				changed = true
			}
			liveIn[b] = in
			liveOut[b] = out
		}
	}
	return liveIn
}

type renameState struct {
	stacks     map[*mir.Instruction][]mir.Value
	phis       map[*mir.Block]map[*mir.Instruction]*mir.Instruction
	cfg        *analysis.CFGResult
	promotable map[*mir.Instruction]bool
}

func (st *renameState) push(a *mir.Instruction, v mir.Value) {
	st.stacks[a] = append(st.stacks[a], v)
}

func (st *renameState) top(a *mir.Instruction) mir.Value {
	s := st.stacks[a]
	if len(s) == 0 {
		return nil // used before any definition: undefined value (spec.md assumes well-formed input)
	}
	return s[len(s)-1]
}

func (st *renameState) rename(b *mir.Block, dom *analysis.DominanceResult) {
	heights := map[*mir.Instruction]int{}
	for a, s := range st.stacks {
		heights[a] = len(s)
	}

	for a, phi := range st.phis[b] {
		st.push(a, phi)
	}

	var toRemove []*mir.Instruction
	for _, inst := range b.NonPhiInstructions() {
		switch inst.Op {
		case mir.OpLoad:
			if a, ok := inst.Operand(0).(*mir.Instruction); ok && isTrackedAlloc(st, a) {
				if v := st.top(a); v != nil {
					mir.ReplaceAllUsesWith(inst, v)
				}
				inst.ClearOperands()
				toRemove = append(toRemove, inst)
			}
		case mir.OpStore:
			if a, ok := inst.Operand(0).(*mir.Instruction); ok && isTrackedAlloc(st, a) {
				st.push(a, inst.Operand(1))
				inst.ClearOperands()
				toRemove = append(toRemove, inst)
			}
		}
	}
	for _, inst := range toRemove {
		b.RemoveInstruction(inst)
	}

	for _, s := range st.cfg.Succs[b] {
		for a, phi := range st.phis[s] {
			phi.AddIncoming(b, st.top(a))
		}
	}

	for _, c := range dom.Children[b] {
		st.rename(c, dom)
	}

	for a := range st.stacks {
		st.stacks[a] = st.stacks[a][:heights[a]]
	}
}

// isTrackedAlloc reports whether a is one of this function's
// promotable allocs; non-promotable allocas' loads/stores are left
// untouched by rename.
func isTrackedAlloc(st *renameState, a *mir.Instruction) bool {
	return st.promotable[a]
}
