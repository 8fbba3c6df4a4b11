// Package analysis implements spec.md §4.4/§4.5's CFG, dominance,
// loop, call-graph, and function-summary analyses as internal/pass
// Analysis implementations: each is a stateless, registry-backed
// singleton (pass.Create[T]) whose Compute result is memoized per
// function by the pass.Manager.
package analysis

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// CFGResult is the predecessor/successor relation for one function,
// derived by walking every block's terminator (spec.md §4.4: "Block
// stores no pred/succ list of its own").
type CFGResult struct {
	Preds map[*mir.Block][]*mir.Block
	Succs map[*mir.Block][]*mir.Block
	// Order lists the function's non-deleted blocks in declaration
	// order, a stable base for the reverse-postorder numbering
	// dominance analysis builds on top of.
	Order []*mir.Block
}

func (c *CFGResult) Predecessors(b *mir.Block) []*mir.Block { return c.Preds[b] }
func (c *CFGResult) Successors(b *mir.Block) []*mir.Block   { return c.Succs[b] }

type CFGAnalysis struct{}

func (CFGAnalysis) Name() string        { return "cfg" }
func (CFGAnalysis) DependsOn() []string { return nil }

func (CFGAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	res := &CFGResult{
		Preds: map[*mir.Block][]*mir.Block{},
		Succs: map[*mir.Block][]*mir.Block{},
	}
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		res.Order = append(res.Order, b)
		res.Preds[b] = nil
		res.Succs[b] = nil
	}
	for _, b := range res.Order {
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			if s == nil || s.Deleted {
				continue
			}
			res.Succs[b] = append(res.Succs[b], s)
			res.Preds[s] = append(res.Preds[s], b)
		}
	}
	return res
}

// CFGOf fetches (or computes) f's memoized CFG.
func CFGOf(mgr *pass.Manager, f *mir.Function) *CFGResult {
	return mgr.GetAnalysisResult(pass.Create[CFGAnalysis](), f).(*CFGResult)
}
