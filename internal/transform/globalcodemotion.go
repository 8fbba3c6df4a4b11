package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// GlobalCodeMotion re-schedules every non-pinned instruction to the
// best legal block: first as early as its operands allow (the
// dominator-tree root downward), then as late as its users allow,
// sliding back up toward the earliest position to pick the
// shallowest-loop-depth block on that path (spec.md §9/SPEC_FULL.md
// §12; not wired into O0/O1 — see SPEC_FULL.md's note on this pass).
// PHI/BRANCH/JUMP/RET/LOAD/STORE and CALLs to anything but a NoState,
// non-IO function are pinned to their original block.
type GlobalCodeMotion struct{}

func (GlobalCodeMotion) Name() string { return "GlobalCodeMotion" }

func (GlobalCodeMotion) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	summaries := analysis.SummariesOf(mgr)
	for _, f := range m.DefinedFunctions() {
		if f.Entry() == nil {
			continue
		}
		if runGCM(f, mgr, summaries) {
			anyChanged = true
			mgr.InvalidateAll(f)
		}
	}
	return anyChanged
}

type gcmState struct {
	f         *mir.Function
	dom       *analysis.DominanceResult
	cfg       *analysis.CFGResult
	loops     *analysis.LoopForest
	summaries *analysis.SummaryResult
	visited   map[*mir.Instruction]bool
	depth     map[*mir.Block]int
}

func runGCM(f *mir.Function, mgr *pass.Manager, summaries *analysis.SummaryResult) bool {
	st := &gcmState{
		f:         f,
		dom:       analysis.DominanceOf(mgr, f),
		cfg:       analysis.CFGOf(mgr, f),
		loops:     analysis.LoopsOf(mgr, f),
		summaries: summaries,
		visited:   map[*mir.Instruction]bool{},
		depth:     map[*mir.Block]int{},
	}
	for _, b := range st.dom.PreOrder() {
		st.depth[b] = domDepth(st.dom, b)
	}

	var snapshot []*mir.Instruction
	for _, b := range st.dom.PreOrder() {
		snapshot = append(snapshot, append([]*mir.Instruction(nil), b.Instructions...)...)
	}
	if len(snapshot) == 0 {
		return false
	}
	entry := f.Entry()

	before := map[*mir.Instruction]*mir.Block{}
	for _, inst := range snapshot {
		before[inst] = inst.GetBlock()
	}

	st.visited = map[*mir.Instruction]bool{}
	for _, inst := range snapshot {
		st.scheduleEarly(inst, entry)
	}
	st.visited = map[*mir.Instruction]bool{}
	for i := len(snapshot) - 1; i >= 0; i-- {
		st.scheduleLate(snapshot[i], entry)
	}

	changed := false
	for _, inst := range snapshot {
		if inst.GetBlock() != before[inst] {
			changed = true
			break
		}
	}
	return changed
}

func domDepth(dom *analysis.DominanceResult, b *mir.Block) int {
	depth := 0
	cur := b
	for {
		p, ok := dom.IDom[cur]
		if !ok || p == cur {
			return depth
		}
		depth++
		cur = p
	}
}

func findLCA(dom *analysis.DominanceResult, depth map[*mir.Block]int, a, b *mir.Block) *mir.Block {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	for depth[a] > depth[b] {
		a = dom.IDom[a]
	}
	for depth[b] > depth[a] {
		b = dom.IDom[b]
	}
	for a != b {
		a = dom.IDom[a]
		b = dom.IDom[b]
	}
	return a
}

func (st *gcmState) isPinned(inst *mir.Instruction) bool {
	switch inst.Op {
	case mir.OpBranch, mir.OpJump, mir.OpRet, mir.OpPhi, mir.OpStore, mir.OpLoad:
		return true
	case mir.OpCall:
		callee := inst.Callee()
		if callee == nil || callee.Runtime {
			return true
		}
		s := st.summaries.Of(callee)
		return !s.NoState || s.IORead || s.IOWrite
	default:
		return false
	}
}

func moveInstructionTo(inst *mir.Instruction, target *mir.Block) {
	if inst.GetBlock() == target {
		return
	}
	inst.GetBlock().RemoveInstruction(inst)
	// Land ahead of the first non-PHI user already in target, so the
	// definition still precedes every use inside the block.
	for _, cand := range target.Instructions {
		if cand.Op == mir.OpPhi || cand.IsTerminator() {
			continue
		}
		for _, u := range inst.Users() {
			if u.User == cand {
				target.InsertBefore(cand, inst)
				return
			}
		}
	}
	target.InsertBeforeTerminator(inst)
}

// scheduleEarly places inst in the dominator-tree root block, then
// pulls it forward to the deepest block still dominated by every one
// of its instruction operands' defining blocks.
func (st *gcmState) scheduleEarly(inst *mir.Instruction, entry *mir.Block) {
	if st.isPinned(inst) || st.visited[inst] {
		return
	}
	st.visited[inst] = true
	moveInstructionTo(inst, entry)
	for _, opv := range inst.GetOperands() {
		opInst, ok := opv.(*mir.Instruction)
		if !ok {
			continue
		}
		if st.depth[inst.GetBlock()] < st.depth[opInst.GetBlock()] {
			moveInstructionTo(inst, opInst.GetBlock())
		}
	}
}

// scheduleLate recurses into every user first (so their own late
// placement is final), computes the LCA of all use sites, then walks
// that LCA back up the dominator tree toward inst's current
// (earliest-legal) block, remembering the shallowest-loop-depth block
// seen (or one whose sole successor is the running choice, preferring
// straight-line fallthrough) as the final placement.
func (st *gcmState) scheduleLate(inst *mir.Instruction, entry *mir.Block) {
	if st.isPinned(inst) || st.visited[inst] {
		return
	}
	st.visited[inst] = true

	var lca *mir.Block
	hasUsers := false
	for _, use := range inst.Users() {
		user := use.User
		if user == nil {
			continue
		}
		hasUsers = true
		st.scheduleLate(user, entry)
		if user.Op == mir.OpPhi {
			for _, pred := range user.IncomingBlocks() {
				if user.IncomingFrom(pred) == inst {
					lca = findLCA(st.dom, st.depth, pred, lca)
				}
			}
		} else {
			lca = findLCA(st.dom, st.depth, user.GetBlock(), lca)
		}
	}

	if hasUsers {
		if lca == nil {
			return
		}
		earliest := inst.GetBlock()
		select_ := lca
		cur := lca
		for i := 0; cur != earliest && cur != entry && i < len(st.dom.PreOrder())+1; i++ {
			next := st.dom.IDom[cur]
			if next == cur {
				break
			}
			cur = next
			if st.loops.Depth(cur) < st.loops.Depth(select_) || singleSuccessorIs(st.cfg, cur, select_) {
				select_ = cur
			}
		}
		moveInstructionTo(inst, select_)
	}
}

func singleSuccessorIs(cfg *analysis.CFGResult, b, target *mir.Block) bool {
	succs := cfg.Succs[b]
	return len(succs) == 1 && succs[0] == target
}
