package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// TreeHeightBalance rebalances a skewed chain of associative op
// instructions into a balanced binary tree (spec.md §4.7), cutting the
// chain's critical path from O(n) to O(log n) so the scheduler sees
// more independent work to overlap. It shares its chain-flattening
// logic with Reassociation but, unlike it, does not reorder leaves by
// rank — the two passes serve different goals (canonical shape for
// GVN vs. shorter dependency height) and run as separate pipeline
// steps so each can be measured and toggled independently.
type TreeHeightBalance struct{}

func (TreeHeightBalance) Name() string { return "TreeHeightBalance" }

func (TreeHeightBalance) Run(m *mir.Module, mgr *pass.Manager) bool {
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
				if isChainLink(inst) {
					continue
				}
				if balanceRoot(inst) {
					anyChanged = true
				}
			}
		}
	}
	return anyChanged
}

func balanceRoot(root *mir.Instruction) bool {
	leaves, internal := flattenChain(root, root.Op, root.SubOp)
	if len(leaves) < 3 {
		return false
	}
	vals := make([]mir.Value, len(leaves))
	for i, l := range leaves {
		vals[i] = l.val
	}

	result, _ := buildBalancedTree(vals, internal)

	if result != mir.Value(root) {
		mir.ReplaceAllUsesWith(root, result)
	}
	return true
}

// buildBalancedTree recursively splits vals in half, consuming one
// scratch node per internal split from `internal` (reused in place, as
// Reassociation does) and returning the unconsumed remainder — always
// empty on the outermost call, by the same full-binary-tree invariant
// Reassociation relies on.
func buildBalancedTree(vals []mir.Value, internal []*mir.Instruction) (mir.Value, []*mir.Instruction) {
	if len(vals) == 1 {
		return vals[0], internal
	}
	mid := len(vals) / 2
	left, internal := buildBalancedTree(vals[:mid], internal)
	right, internal := buildBalancedTree(vals[mid:], internal)

	node := internal[0]
	internal = internal[1:]
	mir.SetOperandAt(node, 0, left)
	mir.SetOperandAt(node, 1, right)
	return node, internal
}
