package riscv

import "sysyc/internal/mir"

// copyPair is one parallel-copy edge: dst must end up holding the
// value currently in src.
type copyPair struct {
	dst VReg
	src Operand
}

// resolveAllPhis removes every PHI in f by inserting MOVE instructions
// at the end of each predecessor block (spec.md §4.11 "Removing
// PHIs"). Each predecessor's set of incoming-value moves is resolved
// as one parallel copy, since two PHIs fed by the same predecessor
// must all read their *old* incoming values simultaneously, not see
// each other's writes — the textbook reason a naive one-move-at-a-time
// emission can silently clobber a still-needed source.
func resolveAllPhis(f *mir.Function, fl *funcLowerer) {
	preds := predecessorsOf(f)
	for _, b := range f.Blocks {
		phis := b.GetPhis()
		if len(phis) == 0 {
			continue
		}
		for _, pred := range preds[b] {
			var pairs []copyPair
			for _, phi := range phis {
				val := phi.IncomingFrom(pred)
				if val == nil {
					continue
				}
				dst, ok := fl.operand[phi].(VReg)
				if !ok {
					continue
				}
				pairs = append(pairs, copyPair{dst: dst, src: fl.resolve(val)})
			}
			if len(pairs) == 0 {
				continue
			}
			lb := fl.blockOf[pred]
			moves := resolveParallelCopy(fl, pairs)
			insertBeforeTerminator(lb, moves)
		}
	}
}

// predecessorsOf builds the MIR-level predecessor map by walking
// every block's terminator successors, mirroring
// internal/analysis.CFGOf's own derivation without depending on the
// pass.Manager (the backend runs after the pipeline has already
// retired its Manager).
func predecessorsOf(f *mir.Function) map[*mir.Block][]*mir.Block {
	preds := map[*mir.Block][]*mir.Block{}
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			preds[s] = append(preds[s], b)
		}
	}
	return preds
}

func insertBeforeTerminator(lb *LBlock, moves []*LInstr) {
	if len(lb.Instrs) == 0 {
		lb.Instrs = moves
		return
	}
	last := lb.Instrs[len(lb.Instrs)-1]
	switch last.Op {
	case LBranch, LJump, LRet:
		lb.Instrs = append(lb.Instrs[:len(lb.Instrs)-1], append(moves, last)...)
	default:
		lb.Instrs = append(lb.Instrs, moves...)
	}
}

// resolveParallelCopy implements spec.md §4.11's two-step resolution:
// schedule every move whose destination nothing else still needs as a
// source, repeatedly; once only cycles remain, break one by saving its
// first destination to a scratch register, redirecting whichever
// pending move read that destination to read the scratch instead, and
// continuing.
func resolveParallelCopy(fl *funcLowerer, pairs []copyPair) []*LInstr {
	work := make([]copyPair, 0, len(pairs))
	for _, p := range pairs {
		if !operandEqual(p.dst, p.src) {
			work = append(work, p)
		}
	}

	var moves []*LInstr
	for len(work) > 0 {
		progressed := false
		for i, p := range work {
			usedAsSrc := false
			for j, q := range work {
				if i != j && operandEqual(q.src, p.dst) {
					usedAsSrc = true
					break
				}
			}
			if !usedAsSrc {
				moves = append(moves, &LInstr{Op: LMove, Dst: p.dst, Src1: p.src})
				work = append(work[:i], work[i+1:]...)
				progressed = true
				break
			}
		}
		if !progressed {
			p := work[0]
			scratch := fl.newVRegClass(p.dst.Class)
			moves = append(moves, &LInstr{Op: LMove, Dst: scratch, Src1: p.dst})
			for i := range work {
				if operandEqual(work[i].src, p.dst) {
					work[i].src = scratch
				}
			}
			moves = append(moves, &LInstr{Op: LMove, Dst: p.dst, Src1: p.src})
			work = work[1:]
		}
	}
	return moves
}

func operandEqual(a, b Operand) bool {
	av, aok := a.(VReg)
	bv, bok := b.(VReg)
	if aok && bok {
		return av == bv
	}
	return a == b
}
