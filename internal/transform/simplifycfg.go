package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// SimplifyControlFlow repeats six local rewrite rules to a per-function
// fixpoint (spec.md §4.9): fold a branch with identical/constant arms
// into a jump, combine a block into its sole successor when that
// successor has no other predecessor, bypass a block that is nothing
// but a jump, hoist a branch into predecessors that all jump to it
// unconditionally, drop a PHI's incoming values from now-unreachable
// predecessors (collapsing it to a plain value when what remains
// agrees), and fuse a PHI-only forwarding block into its target when
// the two blocks' predecessor sets don't overlap. Unreachable blocks
// are swept first each iteration, since several rules only fire once
// the blocks they'd otherwise see are gone.
type SimplifyControlFlow struct{}

func (SimplifyControlFlow) Name() string { return "SimplifyControlFlow" }

func (SimplifyControlFlow) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		if f.Entry() == nil {
			continue
		}
		if simplifyFunction(f) {
			anyChanged = true
			mgr.InvalidateAll(f)
		}
	}
	return anyChanged
}

func simplifyFunction(f *mir.Function) bool {
	changed := false
	for again := true; again; {
		again = false

		reachable := reachableBlocks(f)
		if dropUnreachableBlocks(f, reachable) {
			again, changed = true, true
			reachable = reachableBlocks(f)
		}

		for _, b := range liveBlocks(f) {
			if foldRedundantBranch(b) {
				again, changed = true, true
			}
		}

		for _, b := range liveBlocks(f) {
			term := b.Terminator()
			if term == nil || term.Op != mir.OpJump {
				continue
			}
			s := term.JumpTarget()
			if s == b || s.Deleted {
				continue
			}
			if len(blockPredecessors(f, s)) == 1 && combineBlocks(b, s) {
				again, changed = true, true
			}
		}

		for _, b := range liveBlocks(f) {
			if removeEmptyBlock(b, blockPredecessors(f, b)) {
				again, changed = true, true
			}
		}

		for _, b := range liveBlocks(f) {
			if hoistBranch(b, blockPredecessors(f, b)) {
				again, changed = true, true
			}
		}

		if cleanupPhis(f, reachable) {
			again, changed = true, true
		}

		for _, b := range liveBlocks(f) {
			if mergePhiChainBlock(f, b, blockPredecessors(f, b)) {
				again, changed = true, true
			}
		}
	}
	f.SweepDeletedBlocks()
	return changed
}

func liveBlocks(f *mir.Function) []*mir.Block {
	out := make([]*mir.Block, 0, len(f.Blocks))
	for _, b := range f.Blocks {
		if !b.Deleted {
			out = append(out, b)
		}
	}
	return out
}

func reachableBlocks(f *mir.Function) map[*mir.Block]bool {
	entry := f.Entry()
	reachable := map[*mir.Block]bool{entry: true}
	stack := []*mir.Block{entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			if s != nil && !reachable[s] {
				reachable[s] = true
				stack = append(stack, s)
			}
		}
	}
	return reachable
}

func dropUnreachableBlocks(f *mir.Function, reachable map[*mir.Block]bool) bool {
	changed := false
	for _, b := range f.Blocks {
		if b.Deleted || reachable[b] {
			continue
		}
		for _, inst := range append([]*mir.Instruction(nil), b.Instructions...) {
			inst.ClearOperands()
		}
		b.Deleted = true
		changed = true
	}
	return changed
}

func blockPredecessors(f *mir.Function, target *mir.Block) []*mir.Block {
	var out []*mir.Block
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			if s == target {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// retarget rewrites every reference to from in term's successor list
// to to, rebuilding a SWITCH in place since its block refs have no
// individual setters.
func retarget(term *mir.Instruction, from, to *mir.Block) {
	switch term.Op {
	case mir.OpJump:
		if term.JumpTarget() == from {
			term.SetJumpTarget(to)
		}
	case mir.OpBranch:
		if term.TrueBlock() == from {
			term.SetTrueBlock(to)
		}
		if term.FalseBlock() == from {
			term.SetFalseBlock(to)
		}
	case mir.OpSwitch:
		rebuildSwitchRetargeted(term, from, to)
	}
}

func rebuildSwitchRetargeted(term *mir.Instruction, from, to *mir.Block) {
	b := term.GetBlock()
	def := term.DefaultBlock()
	if def == from {
		def = to
	}
	var cases []mir.SwitchCase
	for _, c := range term.Cases() {
		blk := c.Block
		if blk == from {
			blk = to
		}
		cases = append(cases, mir.SwitchCase{Const: c.Const, Block: blk})
	}
	replacement := mir.NewSwitch(term.Scrutinee(), def, cases, nil)
	b.InsertBefore(term, replacement)
	term.ClearOperands()
	b.RemoveInstruction(term)
}

func dropIncomingFrom(target *mir.Block, pred *mir.Block) {
	for _, phi := range target.GetPhis() {
		phi.RemoveIncoming(pred)
	}
}

// foldRedundantBranch implements rule 1: `branch c, X, X -> jump X`
// and `branch (const true/false), T, F -> jump T/F`.
func foldRedundantBranch(b *mir.Block) bool {
	term := b.Terminator()
	if term == nil || term.Op != mir.OpBranch {
		return false
	}
	trueB, falseB := term.TrueBlock(), term.FalseBlock()
	if trueB == falseB {
		replaceWithJump(b, term, trueB)
		return true
	}
	c, ok := term.Cond().(*mir.Const)
	if !ok || !c.IsBool {
		return false
	}
	keep, drop := trueB, falseB
	if !c.BoolV {
		keep, drop = falseB, trueB
	}
	dropIncomingFrom(drop, b)
	replaceWithJump(b, term, keep)
	return true
}

func replaceWithJump(b *mir.Block, term *mir.Instruction, target *mir.Block) {
	jmp := mir.NewJump(target, nil)
	term.ClearOperands()
	b.RemoveInstruction(term)
	b.InsertBeforeTerminator(jmp)
}

// combineBlocks implements rule 2: B ends in `jump S`, S's only
// predecessor is B — fuse S's body into B, turning S's phis (which
// can only have the one incoming edge from B) into plain values.
func combineBlocks(b, s *mir.Block) bool {
	for _, phi := range append([]*mir.Instruction(nil), s.GetPhis()...) {
		val := phi.IncomingFrom(b)
		mir.ReplaceAllUsesWith(phi, val)
		phi.ClearOperands()
		s.RemoveInstruction(phi)
	}
	term := b.Terminator()
	term.ClearOperands()
	b.RemoveInstruction(term)
	for _, inst := range append([]*mir.Instruction(nil), s.Instructions...) {
		s.RemoveInstruction(inst)
		inst.Parent = b
		b.Instructions = append(b.Instructions, inst)
	}
	s.Deleted = true
	return true
}

// removeEmptyBlock implements rule 3: a block with no phis and a
// single `jump T` instruction is bypassed, fanning any incoming value
// T's phis take from it out to every real predecessor.
func removeEmptyBlock(e *mir.Block, preds []*mir.Block) bool {
	if len(e.GetPhis()) != 0 || len(e.Instructions) != 1 {
		return false
	}
	term := e.Terminator()
	if term == nil || term.Op != mir.OpJump {
		return false
	}
	target := term.JumpTarget()
	if target == e || len(preds) == 0 {
		return false
	}

	for _, p := range preds {
		retarget(p.Terminator(), e, target)
	}
	for _, phi := range target.GetPhis() {
		val := phi.IncomingFrom(e)
		if val == nil {
			continue
		}
		phi.RemoveIncoming(e)
		for _, p := range preds {
			phi.AddIncoming(p, val)
		}
	}
	term.ClearOperands()
	e.RemoveInstruction(term)
	e.Deleted = true
	return true
}

// hoistBranch implements rule 4: a block that is nothing but
// `branch c, T, F`, with every predecessor ending in an unconditional
// jump to it, is replaced by copying the branch into each predecessor
// directly. The original block is left for dropUnreachableBlocks to
// sweep once nothing jumps to it anymore.
func hoistBranch(t *mir.Block, preds []*mir.Block) bool {
	if len(preds) == 0 || len(t.GetPhis()) != 0 || len(t.Instructions) != 1 {
		return false
	}
	term := t.Terminator()
	if term == nil || term.Op != mir.OpBranch {
		return false
	}
	for _, p := range preds {
		pterm := p.Terminator()
		if pterm == nil || pterm.Op != mir.OpJump || pterm.JumpTarget() != t {
			return false
		}
	}

	cond, trueB, falseB := term.Cond(), term.TrueBlock(), term.FalseBlock()
	for _, p := range preds {
		pterm := p.Terminator()
		newBranch := mir.NewBranch(cond, trueB, falseB, nil)
		p.InsertBefore(pterm, newBranch)
		pterm.ClearOperands()
		p.RemoveInstruction(pterm)
	}
	return true
}

// cleanupPhis implements rule 5: drop a PHI's incoming values from
// predecessors no longer reachable, and RAUW the PHI with its single
// remaining value once every surviving incoming value agrees.
func cleanupPhis(f *mir.Function, reachable map[*mir.Block]bool) bool {
	changed := false
	for _, b := range f.Blocks {
		if b.Deleted || !reachable[b] {
			continue
		}
		for _, phi := range append([]*mir.Instruction(nil), b.GetPhis()...) {
			for _, pred := range append([]*mir.Block(nil), phi.IncomingBlocks()...) {
				if !reachable[pred] {
					phi.RemoveIncoming(pred)
					changed = true
				}
			}
			if agree, val := phiAgrees(phi); agree && val != nil {
				mir.ReplaceAllUsesWith(phi, val)
				phi.ClearOperands()
				b.RemoveInstruction(phi)
				changed = true
			}
		}
	}
	return changed
}

func phiAgrees(phi *mir.Instruction) (bool, mir.Value) {
	blocks := phi.IncomingBlocks()
	if len(blocks) == 0 {
		return false, nil
	}
	first := phi.IncomingFrom(blocks[0])
	for _, b := range blocks[1:] {
		if phi.IncomingFrom(b) != first {
			return false, nil
		}
	}
	return true, first
}

// mergePhiChainBlock implements rule 6: a block that is purely phis
// plus a jump to another phi-bearing block fuses into the target when
// the two blocks' predecessor sets are disjoint — each of B's
// predecessors inherits T's incoming edges directly, substituting
// through B's own phis where T took its value from one of them.
func mergePhiChainBlock(f *mir.Function, b *mir.Block, preds []*mir.Block) bool {
	if len(preds) == 0 || len(b.GetPhis()) == 0 || len(b.NonPhiInstructions()) != 1 {
		return false
	}
	term := b.Terminator()
	if term == nil || term.Op != mir.OpJump {
		return false
	}
	t := term.JumpTarget()
	if t == b || len(t.GetPhis()) == 0 {
		return false
	}

	predSet := map[*mir.Block]bool{}
	for _, p := range preds {
		predSet[p] = true
	}
	for _, tp := range blockPredecessors(f, t) {
		if tp != b && predSet[tp] {
			return false
		}
	}

	valueFromB := map[*mir.Instruction]mir.Value{}
	for _, phi := range t.GetPhis() {
		valueFromB[phi] = phi.IncomingFrom(b)
	}

	for _, p := range preds {
		retarget(p.Terminator(), b, t)
		for _, phi := range t.GetPhis() {
			v := valueFromB[phi]
			if bphi, ok := v.(*mir.Instruction); ok && bphi.Op == mir.OpPhi && bphi.GetBlock() == b {
				v = bphi.IncomingFrom(p)
			}
			phi.RemoveIncoming(b)
			phi.AddIncoming(p, v)
		}
	}
	for _, phi := range append([]*mir.Instruction(nil), b.GetPhis()...) {
		phi.ClearOperands()
		b.RemoveInstruction(phi)
	}
	term.ClearOperands()
	b.RemoveInstruction(term)
	b.Deleted = true
	return true
}
