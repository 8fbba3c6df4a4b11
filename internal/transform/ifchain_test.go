package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildEqChain builds a three-way equality chain on the same scalar:
//
//	entry: branch (x==1), a, e1
//	e1:    branch (x==2), b, e2
//	e2:    branch (x==3), c, d
//	a/b/c: ret <their key>
//	d:     ret -1
func buildEqChain() (*mir.Module, *mir.Function, *mir.Block) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	e1 := mir.NewBlock("e1")
	e2 := mir.NewBlock("e2")
	a := mir.NewBlock("a")
	b := mir.NewBlock("b")
	c := mir.NewBlock("c")
	d := mir.NewBlock("d")
	for _, blk := range []*mir.Block{entry, e1, e2, a, b, c, d} {
		f.AddBlock(blk)
	}

	x := f.AddParam("x", mir.I32)

	cmp1 := mir.NewICmp("c1", "EQ", x, mir.ConstInt(1), entry)
	mir.NewBranch(cmp1, a, e1, entry)

	cmp2 := mir.NewICmp("c2", "EQ", x, mir.ConstInt(2), e1)
	mir.NewBranch(cmp2, b, e2, e1)

	cmp3 := mir.NewICmp("c3", "EQ", x, mir.ConstInt(3), e2)
	mir.NewBranch(cmp3, c, d, e2)

	mir.NewRet(mir.ConstInt(1), a)
	mir.NewRet(mir.ConstInt(2), b)
	mir.NewRet(mir.ConstInt(3), c)
	mir.NewRet(mir.ConstInt(-1), d)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f, d
}

func TestIfChainToSwitchCollapsesEqChain(t *testing.T) {
	m, f, d := buildEqChain()
	mgr := pass.NewManager(m, pass.O1)

	changed := IfChainToSwitch{}.Run(m, mgr)
	assert.True(t, changed)

	entry := f.Blocks[0]
	term := entry.Terminator()
	require.NotNil(t, term)
	require.Equal(t, mir.OpSwitch, term.Op, "the chain should collapse to a single switch on the entry block")
	assert.Equal(t, d, term.DefaultBlock())
	assert.Len(t, term.Cases(), 3)

	mir.VerifyFunction(f)
}

func TestIfChainToSwitchIgnoresNonEqualityChain(t *testing.T) {
	f := mir.NewFunction("g", mir.I32, false)
	entry := mir.NewBlock("entry")
	left := mir.NewBlock("left")
	right := mir.NewBlock("right")
	f.AddBlock(entry)
	f.AddBlock(left)
	f.AddBlock(right)

	x := f.AddParam("x", mir.I32)
	cmp := mir.NewICmp("lt", "LT", x, mir.ConstInt(1), entry)
	mir.NewBranch(cmp, left, right, entry)
	mir.NewRet(mir.ConstInt(1), left)
	mir.NewRet(mir.ConstInt(2), right)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	assert.False(t, IfChainToSwitch{}.Run(m, mgr), "a non-equality comparison never matches the chain pattern")
}
