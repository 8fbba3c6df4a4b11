package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Edge-weight constants, verbatim from spec.md §4.9.
const (
	weightBackEdgeTaken    = 124
	weightBackEdgeNotTaken = 4
	weightFCmpEQ           = 12
	weightFCmpNE           = 20
	weightCompareEqual     = 4
	weightCompareNotEqual  = 20
	weightDefault          = 16
)

const frequencyConvergenceThreshold = 1e-6

// BranchProbResult holds, per branching instruction, the normalized
// probability of taking each of its successors (in Successors()
// order), and per-block execution frequency relative to the entry
// block (spec.md §4.9). It feeds BlockPositioning's successor
// ordering and will feed the interval analysis's loop-header
// widen/union decision.
type BranchProbResult struct {
	Prob      map[*mir.Instruction][]float64
	Frequency map[*mir.Block]float64
}

// ProbabilityOf returns the normalized probability that term takes its
// i'th successor (in Successors() order), or 0 if term has no
// recorded weights (e.g. a jump, which has exactly one successor and
// is always taken with probability 1).
func (r *BranchProbResult) ProbabilityOf(term *mir.Instruction, i int) float64 {
	p := r.Prob[term]
	if i < 0 || i >= len(p) {
		return 0
	}
	return p[i]
}

// BranchProbabilityAnalysis is a pass.Analysis living in package
// transform (rather than internal/analysis) because SPEC_FULL.md
// places it alongside the control-flow transforms that consume it;
// pass.Analysis/pass.Manager are deliberately package-agnostic (see
// internal/pass/manager.go) so this is exactly as legitimate a home
// as internal/analysis's own CFGAnalysis/DominanceAnalysis/LoopAnalysis.
type BranchProbabilityAnalysis struct{}

func (BranchProbabilityAnalysis) Name() string { return "branch-probability" }

func (BranchProbabilityAnalysis) DependsOn() []string { return []string{"loops"} }

func (BranchProbabilityAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	cfg := analysis.CFGOf(mgr, f)
	loops := analysis.LoopsOf(mgr, f)

	res := &BranchProbResult{
		Prob:      map[*mir.Instruction][]float64{},
		Frequency: map[*mir.Block]float64{},
	}
	for _, b := range cfg.Order {
		term := b.Terminator()
		if term == nil {
			continue
		}
		succs := term.Successors()
		if len(succs) < 2 {
			continue
		}
		weights := make([]float64, len(succs))
		for i, s := range succs {
			weights[i] = float64(edgeWeight(term, b, s, loops))
		}
		var total float64
		for _, w := range weights {
			total += w
		}
		probs := make([]float64, len(succs))
		for i, w := range weights {
			probs[i] = w / total
		}
		res.Prob[term] = probs
	}

	computeFrequencies(f, cfg, analysis.DominanceOf(mgr, f), res)
	return res
}

// BranchProbOf fetches (or computes) f's memoized branch-probability
// result.
func BranchProbOf(mgr *pass.Manager, f *mir.Function) *BranchProbResult {
	return mgr.GetAnalysisResult(pass.Create[BranchProbabilityAnalysis](), f).(*BranchProbResult)
}

// edgeWeight assigns b -> to's raw (pre-normalization) weight.
func edgeWeight(term *mir.Instruction, from, to *mir.Block, loops *analysis.LoopForest) int {
	if isBackEdge(from, to, loops) {
		return weightBackEdgeTaken
	}
	if l := loops.LoopOf(from); l != nil {
		for _, latch := range l.Latches {
			if latch == from {
				// The other side of a latch's branch, not itself the
				// back edge, is the back edge's "not taken" outcome.
				return weightBackEdgeNotTaken
			}
		}
	}
	if term.Op == mir.OpBranch {
		if w, ok := compareBias(term, to); ok {
			return w
		}
	}
	return weightDefault + sizeHeuristic(to)
}

// isBackEdge reports whether from -> to is a natural-loop back edge:
// to is a loop header and from is one of that loop's latches.
func isBackEdge(from, to *mir.Block, loops *analysis.LoopForest) bool {
	l := loops.LoopOf(to)
	if l == nil || l.Header != to {
		return false
	}
	for _, latch := range l.Latches {
		if latch == from {
			return true
		}
	}
	return false
}

// compareBias implements spec.md §4.9's "compare-with-zero/minus-one
// special cases bias toward not-equal" and "FCMP EQ/NE biased 12/20"
// rules for a two-way branch whose condition is a comparison.
func compareBias(term *mir.Instruction, to *mir.Block) (int, bool) {
	cond, ok := term.Cond().(*mir.Instruction)
	if !ok {
		return 0, false
	}
	takenIsTrue := to == term.TrueBlock()

	switch cond.Op {
	case mir.OpFCmp:
		switch cond.SubOp {
		case "EQ":
			if takenIsTrue {
				return weightFCmpEQ, true
			}
			return weightFCmpNE, true
		case "NE":
			if takenIsTrue {
				return weightFCmpNE, true
			}
			return weightFCmpEQ, true
		}
		return 0, false

	case mir.OpICmp:
		if !isZeroOrMinusOneCompare(cond) {
			return 0, false
		}
		// Bias toward the "not equal" outcome regardless of which
		// comparison operator spells it: an EQ comparison taking its
		// true branch IS the equal outcome, so it gets the low
		// weight; an NE comparison taking its true branch IS the
		// not-equal outcome, so it gets the high weight. Every other
		// combination inverts accordingly.
		isEqualOutcome := (cond.SubOp == "EQ") == takenIsTrue
		if isEqualOutcome {
			return weightCompareEqual, true
		}
		return weightCompareNotEqual, true
	}
	return 0, false
}

func isZeroOrMinusOneCompare(cmp *mir.Instruction) bool {
	for _, v := range cmp.GetOperands() {
		if c, ok := v.(*mir.Const); ok && !c.IsBool && (c.IntV == 0 || c.IntV == -1) {
			return true
		}
	}
	return false
}

// sizeHeuristic prefers branching toward smaller blocks, on the
// assumption that a larger successor is more likely to itself end in
// an early exit (spec.md §4.9's "fall back to a size heuristic").
func sizeHeuristic(b *mir.Block) int {
	n := len(b.NonPhiInstructions())
	if n == 0 {
		return 4
	}
	if n > 4 {
		return 0
	}
	return 4 - n
}

// computeFrequencies sweeps the blocks in dom's preorder (a depth-first
// preorder of the dominator tree rooted at the entry, which does not
// place every block after all of its forward-edge predecessors),
// recomputing each block's frequency from its predecessors' frequencies
// and edge probabilities. Sweeps repeat until every block's change is
// below frequencyConvergenceThreshold or len(order)+2 sweeps have run,
// whichever comes first; frequencies still moving after the last sweep
// keep that sweep's values.
func computeFrequencies(f *mir.Function, cfg *analysis.CFGResult, dom *analysis.DominanceResult, res *BranchProbResult) {
	order := dom.PreOrder()
	if len(order) == 0 {
		return
	}
	entry := order[0]
	res.Frequency[entry] = 1

	for iter := 0; iter < len(order)+2; iter++ {
		maxDelta := 0.0
		for _, b := range order {
			if b == entry {
				continue
			}
			var sum float64
			for _, p := range cfg.Preds[b] {
				term := p.Terminator()
				if term == nil {
					continue
				}
				succs := term.Successors()
				probs := res.Prob[term]
				for i, s := range succs {
					if s != b {
						continue
					}
					if i < len(probs) {
						sum += res.Frequency[p] * probs[i]
					} else {
						sum += res.Frequency[p]
					}
				}
			}
			old := res.Frequency[b]
			if d := sum - old; d > maxDelta || -d > maxDelta {
				maxDelta = d
				if maxDelta < 0 {
					maxDelta = -maxDelta
				}
			}
			res.Frequency[b] = sum
		}
		if maxDelta < frequencyConvergenceThreshold {
			break
		}
	}
}
