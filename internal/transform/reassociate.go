package transform

import (
	"sort"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Reassociation linearizes a chain of associative-commutative integer
// ops, ranks the leaves (spec.md §4.7: "non-instruction < instruction
// < load-of-global < constant"), and rebuilds a right-deep tree in
// that order — pushing constants and global loads to the bottom of
// the chain so ConstantFolding and GVN see a canonical shape instead
// of whatever associativity the source expression happened to use.
type Reassociation struct{}

func (Reassociation) Name() string { return "Reassociation" }

func (Reassociation) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		for _, b := range f.Blocks {
			if b.Deleted {
				continue
			}
			snapshot := append([]*mir.Instruction(nil), b.Instructions...)
			for _, inst := range snapshot {
				if inst.GetBlock() != b || inst.Op != mir.OpIntBinary || !assocOps[inst.SubOp] {
					continue
				}
				// Only reassociate chain roots: an instruction whose
				// sole user is itself another link of the same chain
				// will be folded in when that root is processed.
				if isChainLink(inst) {
					continue
				}
				if reassociateRoot(inst) {
					anyChanged = true
				}
			}
		}
	}
	return anyChanged
}

func isChainLink(inst *mir.Instruction) bool {
	users := inst.Users()
	if len(users) != 1 {
		return false
	}
	parent := users[0].User
	return parent != nil && parent.Op == inst.Op && parent.SubOp == inst.SubOp
}

func reassociateRoot(root *mir.Instruction) bool {
	leaves, internal := flattenChain(root, root.Op, root.SubOp)
	if len(leaves) < 3 || len(internal) < 2 {
		return false // nothing to rebalance
	}

	sort.SliceStable(leaves, func(i, j int) bool {
		ri, rj := operandRank(leaves[i].val), operandRank(leaves[j].val)
		if ri != rj {
			return ri < rj
		}
		return leaves[i].order < leaves[j].order
	})

	// Rebuild right-deep: acc starts as the highest-ranked (deepest)
	// leaf, then each step wraps a lower-ranked leaf around it as the
	// left operand. A full binary tree always has exactly one fewer
	// internal node than it has leaves, so `internal` (root included)
	// supplies exactly n-1 scratch nodes to reuse — no allocation and
	// no leftovers. Reusing the nodes keeps `root`'s identity valid
	// for RAUW even though it now sits at a different tree position.
	n := len(leaves)
	acc := leaves[n-1].val
	for i, node := n-2, 0; i >= 0; i, node = i-1, node+1 {
		mir.SetOperandAt(internal[node], 0, leaves[i].val)
		mir.SetOperandAt(internal[node], 1, acc)
		acc = internal[node]
	}

	if acc != mir.Value(root) {
		mir.ReplaceAllUsesWith(root, acc)
	}
	return true
}
