package analysis

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Loop is one natural loop (spec.md §4.4): a header, its latch blocks
// (back-edge sources), the block set reachable backwards from the
// latches without crossing the header, and the exiting/exit blocks
// derived from it.
type Loop struct {
	Header   *mir.Block
	Latches  []*mir.Block
	Body     []*mir.Block // header included
	Exiting  []*mir.Block // in-body blocks with a successor outside Body
	Exits    []*mir.Block // out-of-body successors of Exiting blocks
	Depth    int
	Parent   *Loop
	Children []*Loop

	bodySet map[*mir.Block]bool
}

// Contains reports whether b is in the loop's body.
func (l *Loop) Contains(b *mir.Block) bool { return l.bodySet[b] }

// LoopForest is the nesting forest over a function's natural loops.
type LoopForest struct {
	Top       []*Loop // outermost loops
	All       []*Loop
	innermost map[*mir.Block]*Loop
}

// LoopOf returns the innermost loop containing b, or nil if b is not
// in any loop.
func (lf *LoopForest) LoopOf(b *mir.Block) *Loop { return lf.innermost[b] }

// Depth returns b's loop nesting depth (0 if not in any loop).
func (lf *LoopForest) Depth(b *mir.Block) int {
	if l := lf.innermost[b]; l != nil {
		return l.Depth
	}
	return 0
}

type LoopAnalysis struct{}

func (LoopAnalysis) Name() string        { return "loops" }
func (LoopAnalysis) DependsOn() []string { return []string{"dominance"} }

func (LoopAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	cfg := CFGOf(mgr, f)
	dom := DominanceOf(mgr, f)

	lf := &LoopForest{innermost: map[*mir.Block]*Loop{}}
	if dom.Entry == nil {
		return lf
	}

	headerLatches := map[*mir.Block][]*mir.Block{}
	var headerOrder []*mir.Block
	for _, b := range cfg.Order {
		for _, succ := range cfg.Succs[b] {
			if dom.Dominates(succ, b) { // b -> succ is a back edge
				if _, ok := headerLatches[succ]; !ok {
					headerOrder = append(headerOrder, succ)
				}
				headerLatches[succ] = append(headerLatches[succ], b)
			}
		}
	}

	for _, h := range headerOrder {
		loop := &Loop{Header: h, Latches: headerLatches[h]}
		loop.bodySet = map[*mir.Block]bool{h: true}
		stack := append([]*mir.Block{}, headerLatches[h]...)
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if loop.bodySet[b] {
				continue
			}
			loop.bodySet[b] = true
			stack = append(stack, cfg.Preds[b]...)
		}
		for _, b := range cfg.Order {
			if loop.bodySet[b] {
				loop.Body = append(loop.Body, b)
			}
		}
		for _, b := range loop.Body {
			exiting := false
			for _, s := range cfg.Succs[b] {
				if !loop.bodySet[s] {
					exiting = true
					loop.Exits = appendUnique(loop.Exits, s)
				}
			}
			if exiting {
				loop.Exiting = append(loop.Exiting, b)
			}
		}
		lf.All = append(lf.All, loop)
	}

	// Nesting: parent of loop L is the smallest other loop whose body
	// strictly contains L's header.
	for _, l := range lf.All {
		var best *Loop
		for _, cand := range lf.All {
			if cand == l || !cand.bodySet[l.Header] {
				continue
			}
			if best == nil || len(cand.Body) < len(best.Body) {
				best = cand
			}
		}
		l.Parent = best
	}
	for _, l := range lf.All {
		if l.Parent != nil {
			l.Parent.Children = append(l.Parent.Children, l)
		} else {
			lf.Top = append(lf.Top, l)
		}
	}
	for _, l := range lf.All {
		depth := 1
		for p := l.Parent; p != nil; p = p.Parent {
			depth++
		}
		l.Depth = depth
	}

	// innermost[block] = the smallest-body loop containing it.
	for _, l := range lf.All {
		for b := range l.bodySet {
			cur := lf.innermost[b]
			if cur == nil || len(l.Body) < len(cur.Body) {
				lf.innermost[b] = l
			}
		}
	}

	return lf
}

// LoopsOf fetches (or computes) f's memoized loop forest.
func LoopsOf(mgr *pass.Manager, f *mir.Function) *LoopForest {
	return mgr.GetAnalysisResult(pass.Create[LoopAnalysis](), f).(*LoopForest)
}
