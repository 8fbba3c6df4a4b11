package analysis

import (
	"strings"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Summary is the per-function attribute set spec.md §4.5 describes.
// Summaries are computed for every defined function by one
// fixpoint pass over the whole call graph (see SummaryAnalysis.Compute)
// so that recursive cycles converge without needing an explicit
// strongly-connected-component decomposition.
type Summary struct {
	IsRecursive   bool
	IsLeaf        bool
	MemoryRead    bool
	MemoryWrite   bool
	MemoryAlloc   bool
	IORead        bool
	IOWrite       bool
	HasReturn     bool
	HasSideEffect bool
	NoState       bool

	UsedGlobalVariables map[*mir.GlobalVariable]bool
}

// SummaryResult maps every defined function to its Summary.
type SummaryResult struct {
	ByFunction map[*mir.Function]*Summary
}

func (r *SummaryResult) Of(f *mir.Function) *Summary {
	if s, ok := r.ByFunction[f]; ok {
		return s
	}
	return &Summary{UsedGlobalVariables: map[*mir.GlobalVariable]bool{}}
}

type SummaryAnalysis struct{}

func (SummaryAnalysis) Name() string        { return "summary" }
func (SummaryAnalysis) DependsOn() []string { return []string{"callgraph"} }

func (SummaryAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	cg := CallGraphOf(mgr)
	result := &SummaryResult{ByFunction: map[*mir.Function]*Summary{}}

	for _, fn := range m.DefinedFunctions() {
		result.ByFunction[fn] = directEffects(fn)
	}
	for _, fn := range m.DefinedFunctions() {
		result.ByFunction[fn].IsRecursive = onCycle(fn, cg)
		result.ByFunction[fn].IsLeaf = len(cg.Forward[fn]) == 0
	}

	// Propagate callee effects into callers by fixpoint, in reverse
	// topological order where the graph is acyclic (spec.md §4.5:
	// "propagated in reverse topological order ... so callers inherit
	// callee effects"); the outer fixpoint loop (bounded by a
	// dirty flag) makes the propagation correct through recursive
	// cycles too, which a single topological pass cannot do.
	order := reverseTopoOrder(m, cg)
	for changed := true; changed; {
		changed = false
		for _, fn := range order {
			s := result.ByFunction[fn]
			for _, callee := range cg.Forward[fn] {
				cs, ok := result.ByFunction[callee]
				if !ok {
					continue // runtime function: no summary, conservatively no effect recorded
				}
				if mergeInto(s, cs) {
					changed = true
				}
			}
		}
	}

	for _, s := range result.ByFunction {
		s.NoState = !s.MemoryRead && !s.MemoryWrite && !s.HasSideEffect
	}

	return result
}

// SummariesOf fetches (or computes) the module's memoized function
// summaries.
func SummariesOf(mgr *pass.Manager) *SummaryResult {
	return mgr.GetAnalysisResult(pass.Create[SummaryAnalysis](), nil).(*SummaryResult)
}

func directEffects(fn *mir.Function) *Summary {
	s := &Summary{UsedGlobalVariables: map[*mir.GlobalVariable]bool{}}
	s.HasReturn = fn.ReturnType != mir.VoidType

	for _, b := range fn.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			switch inst.Op {
			case mir.OpAlloc:
				s.MemoryAlloc = true
			case mir.OpLoad:
				switch root := rootValue(inst.Operand(0)).(type) {
				case *mir.GlobalVariable:
					s.MemoryRead = true
					s.UsedGlobalVariables[root] = true
				}
			case mir.OpStore:
				switch root := rootValue(inst.Operand(0)).(type) {
				case *mir.GlobalVariable:
					s.MemoryWrite = true
					s.UsedGlobalVariables[root] = true
				case *mir.Argument:
					s.HasSideEffect = true
				}
			case mir.OpCall:
				callee := inst.Callee()
				if callee != nil && callee.Runtime {
					name := callee.Name
					if strings.HasPrefix(name, "get") {
						s.IORead = true
					} else if strings.HasPrefix(name, "put") {
						s.IOWrite = true
					} else if name == "_sysy_starttime" || name == "_sysy_stoptime" {
						s.IORead = true
					}
				}
			}
		}
	}
	return s
}

// rootValue unwraps GEP/bitcast chains to find the value an address
// ultimately derives from (a global, an argument, or a local alloca).
func rootValue(v mir.Value) mir.Value {
	for {
		inst, ok := v.(*mir.Instruction)
		if !ok {
			return v
		}
		switch inst.Op {
		case mir.OpGep:
			v = inst.GepBase()
		case mir.OpBitcast:
			v = inst.Operand(0)
		default:
			return v
		}
	}
}

// mergeInto folds callee's summary into caller's, reporting whether
// anything changed (for the fixpoint loop).
func mergeInto(caller, callee *Summary) bool {
	changed := false
	merge := func(dst *bool, src bool) {
		if src && !*dst {
			*dst = true
			changed = true
		}
	}
	merge(&caller.MemoryRead, callee.MemoryRead)
	merge(&caller.MemoryWrite, callee.MemoryWrite)
	merge(&caller.MemoryAlloc, callee.MemoryAlloc)
	merge(&caller.IORead, callee.IORead)
	merge(&caller.IOWrite, callee.IOWrite)
	merge(&caller.HasSideEffect, callee.HasSideEffect)
	for g := range callee.UsedGlobalVariables {
		if !caller.UsedGlobalVariables[g] {
			caller.UsedGlobalVariables[g] = true
			changed = true
		}
	}
	return changed
}

func onCycle(fn *mir.Function, cg *CallGraphResult) bool {
	visited := map[*mir.Function]bool{}
	var visit func(cur *mir.Function) bool
	visit = func(cur *mir.Function) bool {
		for _, callee := range cg.Forward[cur] {
			if callee == fn {
				return true
			}
			if visited[callee] {
				continue
			}
			visited[callee] = true
			if visit(callee) {
				return true
			}
		}
		return false
	}
	return visit(fn)
}
