package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildDiamondAlloc builds:
//
//	entry: %x = alloc i32; branch cond, left, right
//	left:  store 1, %x; jump join
//	right: store 2, %x; jump join
//	join:  %v = load %x; ret %v
func buildDiamondAlloc() (*mir.Module, *mir.Function) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	left := mir.NewBlock("left")
	right := mir.NewBlock("right")
	join := mir.NewBlock("join")
	f.AddBlock(entry)
	f.AddBlock(left)
	f.AddBlock(right)
	f.AddBlock(join)

	cond := f.AddParam("cond", mir.I1)
	x := mir.NewAlloc("x", mir.I32, entry)
	mir.NewBranch(cond, left, right, entry)

	mir.NewStore(x, mir.ConstInt(1), left)
	mir.NewJump(join, left)

	mir.NewStore(x, mir.ConstInt(2), right)
	mir.NewJump(join, right)

	v := mir.NewLoad("v", x, join)
	mir.NewRet(v, join)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f
}

func TestMem2RegPromotesDiamond(t *testing.T) {
	m, f := buildDiamondAlloc()
	mgr := pass.NewManager(m, pass.O1)

	changed := Mem2Reg{}.Run(m, mgr)
	assert.True(t, changed)

	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			assert.NotEqual(t, mir.OpAlloc, inst.Op, "no alloc should survive promotion")
			assert.NotEqual(t, mir.OpLoad, inst.Op, "the load of the promoted alloc should be rewritten away")
		}
	}

	join := f.Blocks[3]
	phis := join.GetPhis()
	require.Len(t, phis, 1, "join should have exactly one phi for the promoted variable")
	phi := phis[0]
	assert.ElementsMatch(t, []*mir.Block{f.Blocks[1], f.Blocks[2]}, phi.IncomingBlocks())

	mir.VerifyFunction(f)
}

func TestMem2RegLeavesAddressTakenAllocAlone(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)
	x := mir.NewAlloc("x", mir.I32, entry)
	// store the alloc's address into another alloc: address taken, not promotable.
	holder := mir.NewAlloc("holder", mir.Pointer(mir.I32), entry)
	mir.NewStore(holder, x, entry)
	mir.NewRet(mir.ConstInt(0), entry)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	Mem2Reg{}.Run(m, mgr)

	found := false
	for _, inst := range entry.Instructions {
		if inst == x {
			found = true
		}
	}
	assert.True(t, found, "address-taken alloc must not be promoted away")
}
