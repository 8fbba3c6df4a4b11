package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildAddFunc builds `func add(a, b) { return a + b; }`, a pure,
// non-allocating, non-recursive function: NoState under
// internal/analysis's summary rules with no help from a prior pass.
func buildAddFunc() *mir.Function {
	f := mir.NewFunction("add", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)
	a := f.AddParam("a", mir.I32)
	b := f.AddParam("b", mir.I32)
	sum := mir.NewIntBinary("sum", "ADD", a, b, entry)
	mir.NewRet(sum, entry)
	return f
}

func TestConstexprFuncEvalFoldsCallWithConstantArgs(t *testing.T) {
	add := buildAddFunc()

	caller := mir.NewFunction("main", mir.I32, false)
	entry := mir.NewBlock("entry")
	caller.AddBlock(entry)
	call := mir.NewCall("r", add, []mir.Value{mir.ConstInt(2), mir.ConstInt(3)}, entry)
	mir.NewRet(call, entry)

	m := mir.NewModule()
	m.AddFunction(add)
	m.AddFunction(caller)
	m.Main = caller
	mgr := pass.NewManager(m, pass.O1)

	changed := ConstexprFuncEval{}.Run(m, mgr)
	assert.True(t, changed)

	term := entry.Terminator()
	require.NotNil(t, term)
	c, ok := term.RetValue().(*mir.Const)
	require.True(t, ok, "the call should have folded to a constant return value")
	assert.Equal(t, int32(5), c.IntV)

	for _, inst := range entry.Instructions {
		assert.NotEqual(t, mir.OpCall, inst.Op, "the folded call should be removed")
	}
}

func TestConstexprFuncEvalLeavesNonConstantArgsAlone(t *testing.T) {
	add := buildAddFunc()

	caller := mir.NewFunction("main", mir.I32, false)
	entry := mir.NewBlock("entry")
	caller.AddBlock(entry)
	n := caller.AddParam("n", mir.I32)
	call := mir.NewCall("r", add, []mir.Value{n, mir.ConstInt(3)}, entry)
	mir.NewRet(call, entry)

	m := mir.NewModule()
	m.AddFunction(add)
	m.AddFunction(caller)
	m.Main = caller
	mgr := pass.NewManager(m, pass.O1)

	assert.False(t, ConstexprFuncEval{}.Run(m, mgr), "a call with a non-constant argument cannot be interpreted")
}
