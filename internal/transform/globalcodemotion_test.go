package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

func TestGlobalCodeMotionNoopOnSingleBlock(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)
	a := f.AddParam("a", mir.I32)
	b := f.AddParam("b", mir.I32)
	sum := mir.NewIntBinary("sum", "ADD", a, b, entry)
	mir.NewRet(sum, entry)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	assert.False(t, GlobalCodeMotion{}.Run(m, mgr), "a single straight-line block has no legal motion to perform")
}

// buildDiamondWithFloatingAdd builds a diamond where "sum" is placed
// in the "then" arm even though its operands (two params) are
// available in entry, and its only use is after the merge:
//
//	entry: branch cond, then, else
//	then:  %sum = a + b; jump join
//	else:  jump join
//	join:  ret (sum + 1)
func buildDiamondWithFloatingAdd() (*mir.Module, *mir.Function, *mir.Block, *mir.Block, *mir.Block, *mir.Block) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	then := mir.NewBlock("then")
	els := mir.NewBlock("else")
	join := mir.NewBlock("join")
	f.AddBlock(entry)
	f.AddBlock(then)
	f.AddBlock(els)
	f.AddBlock(join)

	cond := f.AddParam("cond", mir.I1)
	a := f.AddParam("a", mir.I32)
	b := f.AddParam("b", mir.I32)
	mir.NewBranch(cond, then, els, entry)

	sum := mir.NewIntBinary("sum", "ADD", a, b, then)
	mir.NewJump(join, then)
	mir.NewJump(join, els)

	result := mir.NewIntBinary("result", "ADD", sum, mir.ConstInt(1), join)
	mir.NewRet(result, join)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f, entry, then, els, join
}

func TestGlobalCodeMotionNeverMovesPinnedInstructions(t *testing.T) {
	m, f, _, _, _, join := buildDiamondWithFloatingAdd()
	mgr := pass.NewManager(m, pass.O1)

	ret := join.Terminator()

	GlobalCodeMotion{}.Run(m, mgr)

	assert.Equal(t, join, ret.GetBlock(), "RET is pinned and must stay in its original block")
	mir.VerifyFunction(f)
}

func TestGlobalCodeMotionKeepsDominanceSound(t *testing.T) {
	m, f, _, _, _, _ := buildDiamondWithFloatingAdd()
	mgr := pass.NewManager(m, pass.O1)

	GlobalCodeMotion{}.Run(m, mgr)

	// Every instruction must still end up in a block dominated by every
	// operand instruction's (possibly new) defining block — otherwise
	// GCM would have produced a use that does not observe its def.
	mir.VerifyFunction(f)

	dom := analysis.DominanceOf(mgr, f)
	pos := map[*mir.Instruction]int{}
	for _, b := range f.Blocks {
		for i, inst := range b.Instructions {
			pos[inst] = i
		}
	}
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpPhi {
				continue
			}
			for _, opv := range inst.GetOperands() {
				op, ok := opv.(*mir.Instruction)
				if !ok {
					continue
				}
				if op.GetBlock() == b {
					assert.Less(t, pos[op], pos[inst], "%s must precede its user in the same block", op.ValName())
				} else {
					assert.True(t, dom.Dominates(op.GetBlock(), b), "%s's block must dominate its user's block", op.ValName())
				}
			}
		}
	}
}
