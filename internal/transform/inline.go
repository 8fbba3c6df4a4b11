package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Inline substitutes the body of a non-recursive leaf function at
// every one of its call sites (spec.md §4.9): "for non-recursive leaf
// functions called from a non-empty reverse call graph, substitute
// the callee body at each call site, splitting the caller block and
// rewiring PHIs." Leaf-and-non-recursive keeps cloning simple — the
// callee contains no CALL instructions, so cloning never has to
// recurse into another inlining decision or handle a self-reference.
type Inline struct{}

func (Inline) Name() string { return "Inline" }

func (Inline) Run(m *mir.Module, mgr *pass.Manager) bool {
	summaries := analysis.SummariesOf(mgr)
	cg := analysis.CallGraphOf(mgr)

	var candidates []*mir.Function
	for _, f := range m.DefinedFunctions() {
		if f == m.Main {
			continue
		}
		s := summaries.Of(f)
		if !s.IsLeaf || s.IsRecursive {
			continue
		}
		if len(cg.Reverse[f]) == 0 {
			continue
		}
		candidates = append(candidates, f)
	}

	anyChanged := false
	for _, callee := range candidates {
		changed := false
		for _, caller := range m.DefinedFunctions() {
			if caller == callee {
				continue
			}
			for {
				site := findCallSite(caller, callee)
				if site == nil {
					break
				}
				inlineCallSite(caller, callee, site, mgr)
				changed = true
			}
		}
		if changed {
			anyChanged = true
		}
	}
	return anyChanged
}

func findCallSite(f *mir.Function, callee *mir.Function) *mir.Instruction {
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpCall && inst.Callee() == callee {
				return inst
			}
		}
	}
	return nil
}

// inlineCallSite splits call's block at the call, clones callee's
// body into the gap, and rewires control flow: the caller block jumps
// into the cloned entry, every cloned RET becomes a jump to the
// continuation block, and (when callee returns a value) a PHI in the
// continuation collects the per-exit return values in place of the
// original call result.
func inlineCallSite(caller, callee *mir.Function, call *mir.Instruction, mgr *pass.Manager) {
	callBlock := call.GetBlock()
	cont := splitBlockAfter(caller, callBlock, call)

	vmap := map[mir.Value]mir.Value{}
	args := call.Args()
	for i, p := range callee.Params {
		if i < len(args) {
			vmap[p] = args[i]
		}
	}
	bmap := map[*mir.Block]*mir.Block{}

	order := analysis.DominanceOf(mgr, callee).PreOrder()
	if len(order) == 0 {
		order = callee.Blocks
	}
	for _, ob := range order {
		nb := mir.NewBlock(uniqueBlockName(caller, callee.Name+"."+ob.ValName()))
		caller.AddBlock(nb)
		bmap[ob] = nb
	}

	var phiFixups []*mir.Instruction
	type retSite struct {
		block *mir.Block
		value mir.Value
	}
	var rets []retSite

	for _, ob := range order {
		nb := bmap[ob]
		for _, oi := range ob.Instructions {
			if oi.Op == mir.OpRet {
				rets = append(rets, retSite{block: nb, value: mapValue(oi.RetValue(), vmap)})
				mir.NewJump(cont, nb)
				continue
			}
			ni := cloneInst(oi, vmap, bmap, nb)
			if ni == nil {
				continue
			}
			vmap[oi] = ni
			if oi.Op == mir.OpPhi {
				phiFixups = append(phiFixups, oi)
			}
		}
	}
	for _, oldPhi := range phiFixups {
		newPhi := vmap[oldPhi].(*mir.Instruction)
		for _, pred := range oldPhi.IncomingBlocks() {
			newPhi.AddIncoming(bmap[pred], mapValue(oldPhi.IncomingFrom(pred), vmap))
		}
	}

	entryClone := bmap[order[0]]
	mir.NewJump(entryClone, callBlock)

	if callee.ReturnType != mir.VoidType && len(call.Users()) > 0 {
		if len(rets) == 1 {
			mir.ReplaceAllUsesWith(call, rets[0].value)
		} else {
			phi := mir.NewPhi("inline.ret", callee.ReturnType, nil)
			cont.Instructions = append([]*mir.Instruction{phi}, cont.Instructions...)
			phi.Parent = cont
			for _, r := range rets {
				phi.AddIncoming(r.block, r.value)
			}
			mir.ReplaceAllUsesWith(call, phi)
		}
	}
	call.ClearOperands()
	callBlock.RemoveInstruction(call)

	mgr.InvalidateAll(caller)
}

// splitBlockAfter moves every instruction in b after (not including)
// mark into a fresh block, leaving b (and mark) in place, and returns
// the new block.
func splitBlockAfter(f *mir.Function, b *mir.Block, mark *mir.Instruction) *mir.Block {
	idx := -1
	for i, inst := range b.Instructions {
		if inst == mark {
			idx = i
			break
		}
	}
	cont := mir.NewBlock(uniqueBlockName(f, b.ValName()+".cont"))
	f.AddBlock(cont)

	tail := append([]*mir.Instruction(nil), b.Instructions[idx+1:]...)
	b.Instructions = b.Instructions[:idx+1]
	for _, inst := range tail {
		inst.Parent = cont
		cont.Instructions = append(cont.Instructions, inst)
	}

	for _, succ := range blockSuccessorsOf(cont) {
		for _, phi := range succ.GetPhis() {
			if phi.IncomingFrom(b) != nil {
				val := phi.IncomingFrom(b)
				phi.RemoveIncoming(b)
				phi.AddIncoming(cont, val)
			}
		}
	}
	return cont
}

func blockSuccessorsOf(b *mir.Block) []*mir.Block {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	return term.Successors()
}

func mapValue(v mir.Value, vmap map[mir.Value]mir.Value) mir.Value {
	if v == nil {
		return nil
	}
	if nv, ok := vmap[v]; ok {
		return nv
	}
	return v
}

// cloneInst builds callee instruction oi's clone into nb, resolving
// operands through vmap/bmap. PHI incoming edges are deliberately left
// unset here (the caller wires them in a second pass, once every
// block/instruction clone exists) since a loop-carried PHI can name a
// predecessor not yet cloned.
func cloneInst(oi *mir.Instruction, vmap map[mir.Value]mir.Value, bmap map[*mir.Block]*mir.Block, nb *mir.Block) *mir.Instruction {
	op := func(i int) mir.Value { return mapValue(oi.Operand(i), vmap) }
	switch oi.Op {
	case mir.OpAlloc:
		return mir.NewAlloc(oi.ValName(), oi.ValType().Elem, nb)
	case mir.OpLoad:
		return mir.NewLoad(oi.ValName(), op(0), nb)
	case mir.OpStore:
		return mir.NewStore(op(0), op(1), nb)
	case mir.OpGep:
		var idx []mir.Value
		for i := 1; i < len(oi.GetOperands()); i++ {
			idx = append(idx, op(i))
		}
		return mir.NewGep(oi.ValName(), op(0), idx, oi.ValType(), nb)
	case mir.OpBitcast:
		return mir.NewBitcast(oi.ValName(), op(0), oi.ToType, nb)
	case mir.OpIntBinary:
		return mir.NewIntBinary(oi.ValName(), oi.SubOp, op(0), op(1), nb)
	case mir.OpFloatBinary:
		return mir.NewFloatBinary(oi.ValName(), oi.SubOp, op(0), op(1), nb)
	case mir.OpFloatTernary:
		return mir.NewFloatTernary(oi.ValName(), oi.SubOp, op(0), op(1), op(2), nb)
	case mir.OpFNeg:
		return mir.NewFNeg(oi.ValName(), op(0), nb)
	case mir.OpICmp:
		return mir.NewICmp(oi.ValName(), oi.SubOp, op(0), op(1), nb)
	case mir.OpFCmp:
		return mir.NewFCmp(oi.ValName(), oi.SubOp, op(0), op(1), nb)
	case mir.OpZExt:
		return mir.NewZExt(oi.ValName(), op(0), oi.ToType, nb)
	case mir.OpFPToSI:
		return mir.NewFPToSI(oi.ValName(), op(0), oi.ToType, nb)
	case mir.OpSIToFP:
		return mir.NewSIToFP(oi.ValName(), op(0), oi.ToType, nb)
	case mir.OpPhi:
		return mir.NewPhi(oi.ValName(), oi.ValType(), nb)
	case mir.OpBranch:
		return mir.NewBranch(op(0), bmap[oi.TrueBlock()], bmap[oi.FalseBlock()], nb)
	case mir.OpJump:
		return mir.NewJump(bmap[oi.JumpTarget()], nb)
	case mir.OpSwitch:
		var cases []mir.SwitchCase
		for _, c := range oi.Cases() {
			cases = append(cases, mir.SwitchCase{Const: c.Const, Block: bmap[c.Block]})
		}
		return mir.NewSwitch(op(0), bmap[oi.DefaultBlock()], cases, nb)
	case mir.OpCall:
		// Leaf callees never contain a CALL; defensively skip if one
		// somehow appears rather than cloning a dangling reference.
		return nil
	default:
		return nil
	}
}
