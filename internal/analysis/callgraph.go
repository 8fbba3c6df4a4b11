package analysis

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// CallGraphResult is the whole-module call relation (spec.md §4.5),
// forward (caller -> callees) and reverse (callee -> callers). Unlike
// the per-function analyses above, the call graph is a module-wide
// fact, so it is keyed in the manager's cache under a nil *mir.Function
// — module-scope results memoize the same way per-function ones do,
// just against the zero-value key.
type CallGraphResult struct {
	Forward map[*mir.Function][]*mir.Function
	Reverse map[*mir.Function][]*mir.Function
}

type CallGraphAnalysis struct{}

func (CallGraphAnalysis) Name() string        { return "callgraph" }
func (CallGraphAnalysis) DependsOn() []string { return nil }

func (CallGraphAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	res := &CallGraphResult{
		Forward: map[*mir.Function][]*mir.Function{},
		Reverse: map[*mir.Function][]*mir.Function{},
	}
	for _, fn := range m.Functions {
		res.Forward[fn] = nil
		res.Reverse[fn] = nil
	}
	for _, fn := range m.Functions {
		if fn.Runtime {
			continue
		}
		for _, b := range fn.Blocks {
			if b.Deleted {
				continue
			}
			for _, inst := range b.Instructions {
				if inst.Op != mir.OpCall {
					continue
				}
				callee := inst.Callee()
				if callee == nil {
					continue
				}
				res.Forward[fn] = appendFn(res.Forward[fn], callee)
				res.Reverse[callee] = appendFn(res.Reverse[callee], fn)
			}
		}
	}
	return res
}

func appendFn(list []*mir.Function, f *mir.Function) []*mir.Function {
	for _, x := range list {
		if x == f {
			return list
		}
	}
	return append(list, f)
}

// CallGraphOf fetches (or computes) the module's memoized call graph.
// It is memoized against a nil function key since the result spans
// the whole module.
func CallGraphOf(mgr *pass.Manager) *CallGraphResult {
	return mgr.GetAnalysisResult(pass.Create[CallGraphAnalysis](), nil).(*CallGraphResult)
}

// reverseTopoOrder returns the module's defined functions ordered so
// that every callee precedes its callers wherever the call graph is
// acyclic; functions on a cycle (mutual or self recursion) appear in
// depth-first visit order and are not necessarily adjacent. Built as a
// plain depth-first post-order walk rather than Tarjan's SCC
// algorithm: spec.md §4.5 only requires that summaries propagate
// correctly through recursion, and the monotone fixpoint loop in
// summary.go achieves that without needing an exact topological
// order — this order only makes that loop converge in fewer rounds.
func reverseTopoOrder(m *mir.Module, cg *CallGraphResult) []*mir.Function {
	visited := map[*mir.Function]bool{}
	var order []*mir.Function
	var visit func(fn *mir.Function)
	visit = func(fn *mir.Function) {
		if visited[fn] {
			return
		}
		visited[fn] = true
		for _, callee := range cg.Forward[fn] {
			visit(callee)
		}
		order = append(order, fn)
	}
	for _, fn := range m.DefinedFunctions() {
		visit(fn)
	}
	return order
}
