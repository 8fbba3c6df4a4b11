package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// TailCallOptimize marks (but never transforms) CALL instructions
// that are safe tail calls: calls where no stack-local memory of the
// caller is live across them (spec.md §4.9 "Tail-call optimization
// (marking only)"). A call is marked iff neither the rest of its own
// block, nor any block reachable from it that can still reach a RET,
// touches an ALLOC belonging to this function — directly, or through
// a GEP/BitCast/Load chain rooted at one, or as a CALL argument
// rooted at one. The backend reads Instruction.Tail to skip the
// caller's stack teardown before branching instead of calling.
type TailCallOptimize struct{}

func (TailCallOptimize) Name() string { return "TailCallOptimize" }

func (TailCallOptimize) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		if markTailCalls(f) {
			anyChanged = true
		}
	}
	return anyChanged
}

func markTailCalls(f *mir.Function) bool {
	stackAllocs := map[mir.Value]bool{}
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpAlloc {
				stackAllocs[inst] = true
			}
		}
	}
	changed := false
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for i, inst := range b.Instructions {
			if inst.Op != mir.OpCall || inst.Tail {
				continue
			}
			if inst.Callee() != nil && inst.Callee().Runtime {
				continue
			}
			if tailCallSafe(f, b, i, stackAllocs) {
				inst.Tail = true
				changed = true
			}
		}
	}
	return changed
}

// tailCallSafe reports whether no instruction between (exclusive) the
// call at b.Instructions[idx] and every RET reachable from it touches
// a stack allocation of f.
func tailCallSafe(f *mir.Function, b *mir.Block, idx int, stackAllocs map[mir.Value]bool) bool {
	for _, inst := range b.Instructions[idx+1:] {
		if instTouchesStack(inst, stackAllocs) {
			return false
		}
	}
	visited := map[*mir.Block]bool{b: true}
	term := b.Terminator()
	if term == nil {
		return true
	}
	for _, s := range term.Successors() {
		if s != nil && !pathWithoutStackAccess(s, stackAllocs, visited) {
			return false
		}
	}
	return true
}

func pathWithoutStackAccess(b *mir.Block, stackAllocs map[mir.Value]bool, visited map[*mir.Block]bool) bool {
	if b == nil || b.Deleted || visited[b] {
		return true // cycle or already-cleared block: no new violation found on this edge
	}
	visited[b] = true
	for _, inst := range b.Instructions {
		if instTouchesStack(inst, stackAllocs) {
			return false
		}
	}
	term := b.Terminator()
	if term == nil {
		return true
	}
	for _, s := range term.Successors() {
		if !pathWithoutStackAccess(s, stackAllocs, visited) {
			return false
		}
	}
	return true
}

func instTouchesStack(inst *mir.Instruction, stackAllocs map[mir.Value]bool) bool {
	switch inst.Op {
	case mir.OpLoad:
		return valueRootsInStack(inst.Operand(0), stackAllocs)
	case mir.OpStore:
		return valueRootsInStack(inst.Operand(0), stackAllocs)
	case mir.OpCall:
		for _, a := range inst.Args() {
			if valueRootsInStack(a, stackAllocs) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// valueRootsInStack walks GEP/BitCast/Load chains back to their root
// and reports whether that root is a stack allocation of f.
func valueRootsInStack(v mir.Value, stackAllocs map[mir.Value]bool) bool {
	if stackAllocs[v] {
		return true
	}
	inst, ok := v.(*mir.Instruction)
	if !ok {
		return false
	}
	switch inst.Op {
	case mir.OpGep:
		return valueRootsInStack(inst.GepBase(), stackAllocs)
	case mir.OpBitcast, mir.OpLoad:
		return valueRootsInStack(inst.Operand(0), stackAllocs)
	default:
		return false
	}
}
