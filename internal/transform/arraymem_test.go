package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

func TestGEPFoldCollapsesChainedGeps(t *testing.T) {
	m, _, b := singleBlockFunc("f")
	arr := mir.NewAlloc("arr", mir.Array(8, mir.I32), b)
	inner := mir.NewGep("p1", arr, []mir.Value{mir.ConstInt(2)}, mir.Pointer(mir.I32), b)
	outer := mir.NewGep("p2", inner, []mir.Value{mir.ConstInt(3)}, mir.Pointer(mir.I32), b)
	load := mir.NewLoad("v", outer, b)
	mir.NewRet(load, b)
	mgr := pass.NewManager(m, pass.O1)

	changed := GEPFold{}.Run(m, mgr)
	assert.True(t, changed)

	var geps []*mir.Instruction
	for _, inst := range b.Instructions {
		if inst.Op == mir.OpGep {
			geps = append(geps, inst)
		}
	}
	require.Len(t, geps, 1, "the two geps should collapse into one")
	assert.Equal(t, mir.Value(arr), geps[0].GepBase())
}

func TestLoadEliminationReusesStoredValue(t *testing.T) {
	m, _, b := singleBlockFunc("f")
	x := mir.NewAlloc("x", mir.I32, b)
	mir.NewStore(x, mir.ConstInt(7), b)
	load := mir.NewLoad("v", x, b)
	mir.NewRet(load, b)
	mgr := pass.NewManager(m, pass.O1)

	changed := LoadElimination{}.Run(m, mgr)
	assert.True(t, changed)

	ret := b.Terminator()
	c, ok := ret.RetValue().(*mir.Const)
	require.True(t, ok)
	assert.Equal(t, int32(7), c.IntV)
}

func TestLoadEliminationClearsAcrossJoinBlock(t *testing.T) {
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

	load := mir.NewLoad("v", x, join)
	mir.NewRet(load, join)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := LoadElimination{}.Run(m, mgr)
	assert.False(t, changed, "a join block must not inherit either branch's last-store tracking")

	found := false
	for _, inst := range join.Instructions {
		if inst == load {
			found = true
		}
	}
	assert.True(t, found, "the load at the join point must survive")
}

func TestStoreEliminationDropsImmediatelyOverwrittenStore(t *testing.T) {
	m, _, b := singleBlockFunc("f")
	x := mir.NewAlloc("x", mir.I32, b)
	first := mir.NewStore(x, mir.ConstInt(1), b)
	mir.NewStore(x, mir.ConstInt(2), b)
	mir.NewRet(mir.ConstInt(0), b)
	mgr := pass.NewManager(m, pass.O1)

	changed := StoreElimination{}.Run(m, mgr)
	assert.True(t, changed)

	for _, inst := range b.Instructions {
		assert.NotEqual(t, first, inst, "the first, unobserved store should be removed")
	}
}

func TestStoreEliminationKeepsStoreObservedByLoad(t *testing.T) {
	m, _, b := singleBlockFunc("f")
	x := mir.NewAlloc("x", mir.I32, b)
	first := mir.NewStore(x, mir.ConstInt(1), b)
	mir.NewLoad("v", x, b)
	mir.NewStore(x, mir.ConstInt(2), b)
	mir.NewRet(mir.ConstInt(0), b)
	mgr := pass.NewManager(m, pass.O1)

	StoreElimination{}.Run(m, mgr)

	found := false
	for _, inst := range b.Instructions {
		if inst == first {
			found = true
		}
	}
	assert.True(t, found, "a store observed by an intervening load must survive")
}

func TestSROASplitsArrayAllocIntoScalars(t *testing.T) {
	m, _, b := singleBlockFunc("f")
	arr := mir.NewAlloc("arr", mir.Array(3, mir.I32), b)
	p0 := mir.NewGep("p0", arr, []mir.Value{mir.ConstInt(0)}, mir.Pointer(mir.I32), b)
	mir.NewStore(p0, mir.ConstInt(10), b)
	p1 := mir.NewGep("p1", arr, []mir.Value{mir.ConstInt(1)}, mir.Pointer(mir.I32), b)
	load := mir.NewLoad("v", p1, b)
	mir.NewRet(load, b)
	mgr := pass.NewManager(m, pass.O1)

	changed := SROA{}.Run(m, mgr)
	assert.True(t, changed)

	for _, inst := range b.Instructions {
		assert.NotEqual(t, mir.OpGep, inst.Op, "every gep into the split array should be gone")
		if inst.Op == mir.OpAlloc {
			assert.False(t, inst.ValType().Elem.IsArray(), "every surviving alloc should be scalar")
		}
	}
}

func TestSROARejectsDynamicIndex(t *testing.T) {
	m, f, b := singleBlockFunc("f")
	idx := f.AddParam("i", mir.I32)
	arr := mir.NewAlloc("arr", mir.Array(3, mir.I32), b)
	p := mir.NewGep("p", arr, []mir.Value{idx}, mir.Pointer(mir.I32), b)
	load := mir.NewLoad("v", p, b)
	mir.NewRet(load, b)
	mgr := pass.NewManager(m, pass.O1)

	changed := SROA{}.Run(m, mgr)
	assert.False(t, changed)

	found := false
	for _, inst := range b.Instructions {
		if inst == arr {
			found = true
		}
	}
	assert.True(t, found, "a dynamically-indexed array must not be split")
}

func buildMainWithScalarGlobal(isConstant bool) (*mir.Module, *mir.Function, *mir.GlobalVariable) {
	g := mir.NewGlobalVariable("counter", mir.I32, isConstant, &mir.Initializer{Scalar: mir.ConstInt(9)})
	m := mir.NewModule()
	m.AddGlobal(g)

	main := mir.NewFunction("main", mir.I32, false)
	entry := mir.NewBlock("entry")
	main.AddBlock(entry)
	load := mir.NewLoad("v", g, entry)
	mir.NewRet(load, entry)
	m.AddFunction(main)
	return m, main, g
}

func TestGlobalVariableLocalizeRematerializesMutableGlobalInMain(t *testing.T) {
	m, main, g := buildMainWithScalarGlobal(false)
	mgr := pass.NewManager(m, pass.O1)

	changed := GlobalVariableLocalize{}.Run(m, mgr)
	assert.True(t, changed)

	_, stillThere := m.LookupGlobal("counter")
	assert.False(t, stillThere)

	var sawAlloc, sawStore bool
	for _, inst := range main.Entry().Instructions {
		if inst.Op == mir.OpAlloc {
			sawAlloc = true
		}
		if inst.Op == mir.OpStore {
			sawStore = true
		}
	}
	assert.True(t, sawAlloc, "the global should be rematerialized as a stack alloc")
	assert.True(t, sawStore, "the alloc should be seeded with the initializer")
	_ = g
}

func TestGlobalVariableLocalizeFoldsConstantGlobalDirectly(t *testing.T) {
	m, main, _ := buildMainWithScalarGlobal(true)
	mgr := pass.NewManager(m, pass.O1)

	changed := GlobalVariableLocalize{}.Run(m, mgr)
	assert.True(t, changed)

	for _, inst := range main.Entry().Instructions {
		assert.NotEqual(t, mir.OpAlloc, inst.Op, "a constant global needs no alloca")
		assert.NotEqual(t, mir.OpLoad, inst.Op)
	}
	ret := main.Entry().Terminator()
	c, ok := ret.RetValue().(*mir.Const)
	require.True(t, ok)
	assert.Equal(t, int32(9), c.IntV)
}

func TestConstIndexToValueFoldsConstantArrayLoad(t *testing.T) {
	init := &mir.Initializer{Array: []*mir.Initializer{
		{Scalar: mir.ConstInt(10)},
		{Scalar: mir.ConstInt(20)},
		{Scalar: mir.ConstInt(30)},
	}}
	g := mir.NewGlobalVariable("table", mir.Array(3, mir.I32), true, init)
	m := mir.NewModule()
	m.AddGlobal(g)

	f := mir.NewFunction("f", mir.I32, false)
	b := mir.NewBlock("entry")
	f.AddBlock(b)
	gep := mir.NewGep("p", g, []mir.Value{mir.ConstInt(1)}, mir.Pointer(mir.I32), b)
	load := mir.NewLoad("v", gep, b)
	mir.NewRet(load, b)
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := ConstIndexToValue{}.Run(m, mgr)
	assert.True(t, changed)

	ret := b.Terminator()
	c, ok := ret.RetValue().(*mir.Const)
	require.True(t, ok)
	assert.Equal(t, int32(20), c.IntV)
}
