package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// LoadElimination is a dominator-tree walk that tracks, per address
// SSA value, the last value stored or loaded there, RAUW-ing a load
// that repeats one already known (spec.md §4.8). Keying on the
// address Value itself (rather than a separately-computed (base,
// index) pair) is sound here because GEPFold/GVN run earlier in the
// pipeline and already canonicalize equivalent address computations
// onto one SSA value — a global is used directly, an array element's
// address is the GEP value that already bundles (base, index)
// together. Maps are cleared entering any block with more than one
// predecessor, matching the conservative join-point rule spec.md
// calls for instead of attempting a real must-reach merge.
type LoadElimination struct{}

func (LoadElimination) Name() string { return "LoadElimination" }

func (l LoadElimination) Run(m *mir.Module, mgr *pass.Manager) bool {
	summaries := analysis.SummariesOf(mgr)
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		if f.Entry() == nil {
			continue
		}
		dom := analysis.DominanceOf(mgr, f)
		cfg := analysis.CFGOf(mgr, f)
		if runLoadElimOnFunction(f, dom, cfg, summaries) {
			anyChanged = true
			mgr.SetDirty("cfg", f) // addresses may now be unused; DCE cleans up
		}
	}
	return anyChanged
}

type loadElimMaps struct {
	lastStore map[mir.Value]mir.Value
	lastLoad  map[mir.Value]mir.Value
}

func freshLoadElimMaps() loadElimMaps {
	return loadElimMaps{lastStore: map[mir.Value]mir.Value{}, lastLoad: map[mir.Value]mir.Value{}}
}

func runLoadElimOnFunction(f *mir.Function, dom *analysis.DominanceResult, cfg *analysis.CFGResult, summaries *analysis.SummaryResult) bool {
	changed := false

	var walk func(b *mir.Block, maps loadElimMaps)
	walk = func(b *mir.Block, maps loadElimMaps) {
		if len(cfg.Predecessors(b)) > 1 {
			maps = freshLoadElimMaps()
		}
		snapshot := append([]*mir.Instruction(nil), b.Instructions...)
		for _, inst := range snapshot {
			if inst.GetBlock() != b {
				continue
			}
			switch inst.Op {
			case mir.OpLoad:
				addr := inst.Operand(0)
				if v, ok := maps.lastStore[addr]; ok {
					mir.ReplaceAllUsesWith(inst, v)
					inst.ClearOperands()
					b.RemoveInstruction(inst)
					changed = true
					continue
				}
				if v, ok := maps.lastLoad[addr]; ok {
					mir.ReplaceAllUsesWith(inst, v)
					inst.ClearOperands()
					b.RemoveInstruction(inst)
					changed = true
					continue
				}
				maps.lastLoad[addr] = inst

			case mir.OpStore:
				addr, val := inst.Operand(0), inst.Operand(1)
				maps.lastStore[addr] = val
				delete(maps.lastLoad, addr)

			case mir.OpCall:
				invalidateForCall(inst, maps, summaries)
			}
		}
		// Each dominator-tree child sees an independent copy: two
		// sibling subtrees represent mutually exclusive control paths,
		// so mutations made walking one must not leak into the other.
		for _, c := range dom.Children[b] {
			walk(c, cloneLoadElimMaps(maps))
		}
	}
	walk(dom.Entry, freshLoadElimMaps())
	return changed
}

func cloneLoadElimMaps(maps loadElimMaps) loadElimMaps {
	out := freshLoadElimMaps()
	for k, v := range maps.lastStore {
		out.lastStore[k] = v
	}
	for k, v := range maps.lastLoad {
		out.lastLoad[k] = v
	}
	return out
}

// invalidateForCall drops tracking entries a call might invalidate:
// any entry rooted at a global the callee transitively writes, and
// (conservatively) any entry rooted at a pointer-typed argument passed
// to a callee with an otherwise-observable side effect.
func invalidateForCall(call *mir.Instruction, maps loadElimMaps, summaries *analysis.SummaryResult) {
	callee := call.Callee()
	if callee == nil {
		clearAll(maps)
		return
	}
	if callee.Runtime {
		clearAll(maps)
		return
	}
	s := summaries.Of(callee)
	if s.MemoryWrite {
		for _, tracked := range []map[mir.Value]mir.Value{maps.lastStore, maps.lastLoad} {
			for addr := range tracked {
				if g, ok := rootValueInTransform(addr).(*mir.GlobalVariable); ok && s.UsedGlobalVariables[g] {
					delete(maps.lastStore, addr)
					delete(maps.lastLoad, addr)
				}
			}
		}
	}
	if s.HasSideEffect {
		for _, arg := range call.Args() {
			if !arg.ValType().IsPointer() {
				continue
			}
			root := rootValueInTransform(arg)
			for _, tracked := range []map[mir.Value]mir.Value{maps.lastStore, maps.lastLoad} {
				for addr := range tracked {
					if rootValueInTransform(addr) == root {
						delete(maps.lastStore, addr)
						delete(maps.lastLoad, addr)
					}
				}
			}
		}
	}
}

func clearAll(maps loadElimMaps) {
	for k := range maps.lastStore {
		delete(maps.lastStore, k)
	}
	for k := range maps.lastLoad {
		delete(maps.lastLoad, k)
	}
}
