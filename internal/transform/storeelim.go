package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// StoreElimination deletes a store immediately overwritten, within
// the same block, by another store to the same address with no
// intervening load or call that could observe the first value
// (spec.md §4.8). Unlike LoadElimination this has no cross-block
// form: the moment control could have branched since the pending
// store, spec.md's wording no longer guarantees "immediately", so the
// pending set is simply dropped at the end of each block rather than
// threaded through the dominator tree.
type StoreElimination struct{}

func (StoreElimination) Name() string { return "StoreElimination" }

func (StoreElimination) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		for _, b := range f.Blocks {
			if b.Deleted {
				continue
			}
			if runStoreElimOnBlock(b) {
				anyChanged = true
			}
		}
	}
	return anyChanged
}

func runStoreElimOnBlock(b *mir.Block) bool {
	changed := false
	pending := map[mir.Value]*mir.Instruction{}

	snapshot := append([]*mir.Instruction(nil), b.Instructions...)
	for _, inst := range snapshot {
		if inst.GetBlock() != b {
			continue
		}
		switch inst.Op {
		case mir.OpStore:
			addr := inst.Operand(0)
			if prev, ok := pending[addr]; ok {
				prev.ClearOperands()
				b.RemoveInstruction(prev)
				changed = true
			}
			pending[addr] = inst

		case mir.OpLoad:
			delete(pending, inst.Operand(0))

		case mir.OpCall:
			for k := range pending {
				delete(pending, k)
			}
		}
	}
	return changed
}
