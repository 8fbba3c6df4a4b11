package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildSumToN builds: fn sum(n, acc) { if n == 0 { return acc } return sum(n-1, acc+n) }
func buildSumToN() (*mir.Module, *mir.Function) {
	f := mir.NewFunction("sum", mir.I32, false)
	entry := mir.NewBlock("entry")
	base := mir.NewBlock("base")
	rec := mir.NewBlock("rec")
	f.AddBlock(entry)
	f.AddBlock(base)
	f.AddBlock(rec)

	n := f.AddParam("n", mir.I32)
	acc := f.AddParam("acc", mir.I32)

	cmp := mir.NewICmp("iszero", "EQ", n, mir.ConstInt(0), entry)
	mir.NewBranch(cmp, base, rec, entry)

	mir.NewRet(acc, base)

	nMinus1 := mir.NewIntBinary("n1", "ADD", n, mir.ConstInt(-1), rec)
	accPlusN := mir.NewIntBinary("acc1", "ADD", acc, n, rec)
	call := mir.NewCall("r", f, []mir.Value{nMinus1, accPlusN}, rec)
	mir.NewRet(call, rec)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f
}

func TestTailRecursionToLoopConvertsDirectTailReturn(t *testing.T) {
	m, f := buildSumToN()
	mgr := pass.NewManager(m, pass.O1)

	changed := TailRecursionToLoop{}.Run(m, mgr)
	assert.True(t, changed)

	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			assert.NotEqual(t, mir.OpCall, inst.Op, "the recursive call should be gone")
		}
	}

	var sawPreheader bool
	for _, b := range f.Blocks {
		if b.ValName() == "entry.preheader" {
			sawPreheader = true
		}
	}
	assert.True(t, sawPreheader, "a new preheader block should feed the loop header")
	assert.Equal(t, "entry.preheader", f.Blocks[0].ValName(), "the preheader becomes the new entry")
}

// buildSumAccumulate builds: fn sum(n) { if n == 0 { return 0 } return n + sum(n-1) }
func buildSumAccumulate() (*mir.Module, *mir.Function) {
	f := mir.NewFunction("sum", mir.I32, false)
	entry := mir.NewBlock("entry")
	base := mir.NewBlock("base")
	rec := mir.NewBlock("rec")
	f.AddBlock(entry)
	f.AddBlock(base)
	f.AddBlock(rec)

	n := f.AddParam("n", mir.I32)

	cmp := mir.NewICmp("iszero", "EQ", n, mir.ConstInt(0), entry)
	mir.NewBranch(cmp, base, rec, entry)

	mir.NewRet(mir.ConstInt(0), base)

	nMinus1 := mir.NewIntBinary("n1", "ADD", n, mir.ConstInt(-1), rec)
	call := mir.NewCall("r", f, []mir.Value{nMinus1}, rec)
	sum := mir.NewIntBinary("acc", "ADD", n, call, rec)
	mir.NewRet(sum, rec)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f
}

func TestTailRecursionToLoopIntroducesAccumulatorPhi(t *testing.T) {
	m, f := buildSumAccumulate()
	mgr := pass.NewManager(m, pass.O1)

	changed := TailRecursionToLoop{}.Run(m, mgr)
	assert.True(t, changed)

	var accPhi *mir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpPhi && inst.ValName() == "accum" {
				accPhi = inst
			}
		}
	}
	require.NotNil(t, accPhi, "an accumulator phi seeded with ADD's identity should be introduced")
}
