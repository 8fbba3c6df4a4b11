package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

func TestSimplifyControlFlowFoldsConstantBranch(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	t1 := mir.NewBlock("t1")
	f1 := mir.NewBlock("f1")
	f.AddBlock(entry)
	f.AddBlock(t1)
	f.AddBlock(f1)

	mir.NewBranch(mir.ConstBool(true), t1, f1, entry)
	mir.NewRet(mir.ConstInt(1), t1)
	mir.NewRet(mir.ConstInt(2), f1)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := SimplifyControlFlow{}.Run(m, mgr)
	assert.True(t, changed)

	// The folded `jump t1` is then combined with t1 (its sole
	// predecessor is entry), so entry ends in t1's `ret 1`.
	term := entry.Terminator()
	require.Equal(t, mir.OpRet, term.Op)
	c, ok := term.RetValue().(*mir.Const)
	require.True(t, ok)
	assert.Equal(t, int32(1), c.IntV)
}

func TestSimplifyControlFlowCombinesSoleSuccessor(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	only := mir.NewBlock("only")
	f.AddBlock(entry)
	f.AddBlock(only)

	mir.NewJump(only, entry)
	mir.NewRet(mir.ConstInt(42), only)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := SimplifyControlFlow{}.Run(m, mgr)
	assert.True(t, changed)
	require.Len(t, f.Blocks, 1)
	ret := f.Blocks[0].Terminator()
	c, ok := ret.RetValue().(*mir.Const)
	require.True(t, ok)
	assert.Equal(t, int32(42), c.IntV)
}

func TestSimplifyControlFlowBypassesEmptyBlock(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	left := mir.NewBlock("left")
	right := mir.NewBlock("right")
	empty := mir.NewBlock("empty")
	join := mir.NewBlock("join")
	f.AddBlock(entry)
	f.AddBlock(left)
	f.AddBlock(right)
	f.AddBlock(empty)
	f.AddBlock(join)

	cond := f.AddParam("cond", mir.I1)
	mir.NewBranch(cond, left, right, entry)
	mir.NewJump(empty, left)
	mir.NewJump(join, right)
	mir.NewJump(join, empty)

	phi := mir.NewPhi("v", mir.I32, join)
	phi.AddIncoming(empty, mir.ConstInt(1))
	phi.AddIncoming(right, mir.ConstInt(2))
	mir.NewRet(phi, join)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := SimplifyControlFlow{}.Run(m, mgr)
	assert.True(t, changed)

	for _, b := range f.Blocks {
		assert.NotEqual(t, "empty", b.ValName())
	}
	assert.ElementsMatch(t, []*mir.Block{left, right}, phi.IncomingBlocks())
	assert.Equal(t, mir.Value(mir.ConstInt(1)), phi.IncomingFrom(left))
}

func TestSimplifyControlFlowDropsUnreachableBlock(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	dead := mir.NewBlock("dead")
	f.AddBlock(entry)
	f.AddBlock(dead)

	mir.NewRet(mir.ConstInt(0), entry)
	mir.NewRet(mir.ConstInt(9), dead)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := SimplifyControlFlow{}.Run(m, mgr)
	assert.True(t, changed)
	require.Len(t, f.Blocks, 1)
	assert.Equal(t, entry, f.Blocks[0])
}
