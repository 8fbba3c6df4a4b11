package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// diamond builds:
//
//	entry -> left, right
//	left -> join
//	right -> join
//	join -> ret
func diamond() (*mir.Function, *mir.Block, *mir.Block, *mir.Block) {
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
	mir.NewBranch(cond, left, right, entry)
	mir.NewJump(join, left)
	mir.NewJump(join, right)
	mir.NewRet(mir.ConstInt(0), join)
	return f, entry, left, right
}

func TestCFGAnalysis(t *testing.T) {
	f, entry, left, right := diamond()
	join := f.Blocks[3]
	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	cfg := CFGOf(mgr, f)
	assert.ElementsMatch(t, []*mir.Block{left, right}, cfg.Succs[entry])
	assert.ElementsMatch(t, []*mir.Block{left, right}, cfg.Preds[join])
}

func TestDominanceAnalysis(t *testing.T) {
	f, entry, left, right := diamond()
	join := f.Blocks[3]
	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	dom := DominanceOf(mgr, f)
	assert.Equal(t, entry, dom.IDom[left])
	assert.Equal(t, entry, dom.IDom[right])
	assert.Equal(t, entry, dom.IDom[join], "join's idom is entry, not left or right")
	assert.True(t, dom.Dominates(entry, join))
	assert.False(t, dom.StrictlyDominates(left, join))

	// join has two preds, so it is in the frontier of both left and right.
	assert.Contains(t, dom.Frontier[left], join)
	assert.Contains(t, dom.Frontier[right], join)
}

func TestLoopAnalysis(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	header := mir.NewBlock("header")
	body := mir.NewBlock("body")
	exit := mir.NewBlock("exit")
	f.AddBlock(entry)
	f.AddBlock(header)
	f.AddBlock(body)
	f.AddBlock(exit)

	mir.NewJump(header, entry)
	cond := f.AddParam("cond", mir.I1)
	mir.NewBranch(cond, body, exit, header)
	mir.NewJump(header, body) // back edge body -> header
	mir.NewRet(mir.ConstInt(0), exit)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	loops := LoopsOf(mgr, f)
	require.Len(t, loops.All, 1)
	loop := loops.All[0]
	assert.Equal(t, header, loop.Header)
	assert.ElementsMatch(t, []*mir.Block{body}, loop.Latches)
	assert.True(t, loop.Contains(header))
	assert.True(t, loop.Contains(body))
	assert.False(t, loop.Contains(exit))
	assert.Equal(t, 1, loops.Depth(body))
	assert.Equal(t, 0, loops.Depth(exit))
}

func TestCallGraphAndSummaries(t *testing.T) {
	m := mir.NewModule()

	getint := mir.NewFunction("getint", mir.I32, true)
	m.AddFunction(getint)

	// helper(n) calls getint and recurses on itself.
	helper := mir.NewFunction("helper", mir.I32, false)
	hEntry := mir.NewBlock("entry")
	helper.AddBlock(hEntry)
	n := helper.AddParam("n", mir.I32)
	v := mir.NewCall("v", getint, nil, hEntry)
	rec := mir.NewCall("rec", helper, []mir.Value{n}, hEntry)
	sum := mir.NewIntBinary("sum", "ADD", v, rec, hEntry)
	mir.NewRet(sum, hEntry)
	m.AddFunction(helper)

	main := mir.NewFunction("main", mir.I32, false)
	mEntry := mir.NewBlock("entry")
	main.AddBlock(mEntry)
	call := mir.NewCall("r", helper, []mir.Value{mir.ConstInt(1)}, mEntry)
	mir.NewRet(call, mEntry)
	m.AddFunction(main)

	mgr := pass.NewManager(m, pass.O1)
	cg := CallGraphOf(mgr)
	assert.ElementsMatch(t, []*mir.Function{getint, helper}, cg.Forward[helper])
	assert.ElementsMatch(t, []*mir.Function{helper, main}, cg.Reverse[helper])

	summaries := SummariesOf(mgr)
	hs := summaries.Of(helper)
	assert.True(t, hs.IsRecursive)
	assert.True(t, hs.IORead, "helper calls getint directly")
	assert.False(t, hs.IsLeaf)

	ms := summaries.Of(main)
	assert.True(t, ms.IORead, "main inherits IORead from helper transitively")
	assert.False(t, ms.IsRecursive)
}
