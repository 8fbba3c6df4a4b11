package transform

import "sysyc/internal/mir"

// assocOps are the associative-commutative integer operators
// Reassociation and TreeHeightBalance both flatten chains of
// (spec.md §4.7: "for each associative-commutative integer op").
var assocOps = map[string]bool{"ADD": true, "MUL": true, "AND": true, "OR": true, "XOR": true}

// operandRank implements spec.md §4.7's ranking: "non-instruction <
// instruction < load-of-global < constant".
func operandRank(v mir.Value) int {
	if _, ok := v.(*mir.Const); ok {
		return 3
	}
	if inst, ok := v.(*mir.Instruction); ok {
		if inst.Op == mir.OpLoad {
			if _, isGlobal := loadRoot(inst).(*mir.GlobalVariable); isGlobal {
				return 2
			}
		}
		return 1
	}
	return 0 // Argument, GlobalVariable (used directly, not via load), Block
}

func loadRoot(load *mir.Instruction) mir.Value {
	return rootValueInTransform(load.Operand(0))
}

// rootValueInTransform mirrors internal/analysis's unexported
// rootValue: unwrap GEP/bitcast chains to find the address an
// instruction ultimately derives from.
func rootValueInTransform(v mir.Value) mir.Value {
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

// chainLeaf pairs a flattened operand with its original discovery
// order, used as the stable tie-break in sorts over operandRank.
type chainLeaf struct {
	val   mir.Value
	order int
}

// flattenChain collects root's operands into leaves, recursively
// inlining any operand that is itself an instruction of the same
// op/subOp with exactly one user (this chain is its only use) —
// anything else (multi-use subexpressions, opaque values) becomes an
// opaque leaf. It also returns every internal chain instruction found
// (root included), in case the caller wants to reuse or delete them.
func flattenChain(root *mir.Instruction, op mir.Operator, subOp string) ([]chainLeaf, []*mir.Instruction) {
	var leaves []chainLeaf
	var internal []*mir.Instruction
	order := 0

	var walk func(inst *mir.Instruction)
	walk = func(inst *mir.Instruction) {
		internal = append(internal, inst)
		for _, slotIdx := range [2]int{0, 1} {
			operand := inst.Operand(slotIdx)
			if opInst, ok := operand.(*mir.Instruction); ok &&
				opInst.Op == op && opInst.SubOp == subOp &&
				len(opInst.Users()) == 1 && opInst != root {
				walk(opInst)
				continue
			}
			leaves = append(leaves, chainLeaf{val: operand, order: order})
			order++
		}
	}
	walk(root)
	return leaves, internal
}
