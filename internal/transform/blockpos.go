package transform

import (
	"sort"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// BlockPositioning reorders each function's physical block list into
// a reverse-post-order layout that visits a branch's higher-
// probability successor first, so the common-case edge tends to land
// on consecutive blocks; the backend can then emit it as a fall-
// through rather than an explicit jump (spec.md §4.9).
type BlockPositioning struct{}

func (BlockPositioning) Name() string { return "BlockPositioning" }

func (BlockPositioning) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		if positionBlocks(f, mgr) {
			anyChanged = true
		}
	}
	return anyChanged
}

func positionBlocks(f *mir.Function, mgr *pass.Manager) bool {
	entry := f.Entry()
	if entry == nil {
		return false
	}
	prob := BranchProbOf(mgr, f)

	visited := map[*mir.Block]bool{}
	var order []*mir.Block
	var visit func(b *mir.Block)
	visit = func(b *mir.Block) {
		if b == nil || b.Deleted || visited[b] {
			return
		}
		visited[b] = true
		if term := b.Terminator(); term != nil {
			// Coldest first, so the likeliest successor finishes last
			// and lands right after b once the post-order is reversed.
			succs := orderedSuccessors(term, prob)
			for i := len(succs) - 1; i >= 0; i-- {
				visit(succs[i])
			}
		}
		order = append(order, b)
	}
	visit(entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	// Any block not reached by the DFS (unreachable, or only
	// reachable through a predecessor this pass hasn't visited yet in
	// a multi-entry scenario) keeps its relative declaration order,
	// appended after the positioned blocks.
	for _, b := range f.Blocks {
		if !b.Deleted && !visited[b] {
			order = append(order, b)
		}
	}

	changed := len(order) != len(f.Blocks)
	if !changed {
		for i, b := range order {
			if f.Blocks[i] != b {
				changed = true
				break
			}
		}
	}
	f.Blocks = order
	return changed
}

// orderedSuccessors returns term's successors sorted by descending
// probability (stable, so equally-weighted successors keep their
// original relative order).
func orderedSuccessors(term *mir.Instruction, prob *BranchProbResult) []*mir.Block {
	succs := term.Successors()
	probs := prob.Prob[term]
	if len(probs) != len(succs) {
		return succs
	}
	idx := make([]int, len(succs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	out := make([]*mir.Block, len(succs))
	for i, j := range idx {
		out[i] = succs[j]
	}
	return out
}
