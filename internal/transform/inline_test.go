package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildCallerOfLeaf builds a non-recursive leaf callee `double(x) {
// return x + x; }` and a caller `main() { return double(5) + 1; }`.
func buildCallerOfLeaf() (*mir.Module, *mir.Function, *mir.Function) {
	callee := mir.NewFunction("double", mir.I32, false)
	cEntry := mir.NewBlock("entry")
	callee.AddBlock(cEntry)
	x := callee.AddParam("x", mir.I32)
	sum := mir.NewIntBinary("sum", "ADD", x, x, cEntry)
	mir.NewRet(sum, cEntry)

	caller := mir.NewFunction("main", mir.I32, false)
	mEntry := mir.NewBlock("entry")
	caller.AddBlock(mEntry)
	call := mir.NewCall("r", callee, []mir.Value{mir.ConstInt(5)}, mEntry)
	result := mir.NewIntBinary("result", "ADD", call, mir.ConstInt(1), mEntry)
	mir.NewRet(result, mEntry)

	m := mir.NewModule()
	m.AddFunction(callee)
	m.AddFunction(caller)
	m.Main = caller
	return m, caller, callee
}

func TestInlineSubstitutesLeafCallSite(t *testing.T) {
	m, caller, callee := buildCallerOfLeaf()
	mgr := pass.NewManager(m, pass.O1)

	changed := Inline{}.Run(m, mgr)
	assert.True(t, changed)

	for _, b := range caller.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpCall {
				assert.NotEqual(t, callee, inst.Callee(), "the call to the inlined leaf must be gone")
			}
		}
	}

	for _, f := range m.DefinedFunctions() {
		mir.VerifyFunction(f)
	}
}

func TestInlineSkipsFunctionWithNoCallers(t *testing.T) {
	callee := mir.NewFunction("unused", mir.I32, false)
	cEntry := mir.NewBlock("entry")
	callee.AddBlock(cEntry)
	mir.NewRet(mir.ConstInt(0), cEntry)

	caller := mir.NewFunction("main", mir.I32, false)
	mEntry := mir.NewBlock("entry")
	caller.AddBlock(mEntry)
	mir.NewRet(mir.ConstInt(1), mEntry)

	m := mir.NewModule()
	m.AddFunction(callee)
	m.AddFunction(caller)
	m.Main = caller
	mgr := pass.NewManager(m, pass.O1)

	assert.False(t, Inline{}.Run(m, mgr), "a leaf function nothing calls has nothing to substitute")

	require.Len(t, callee.Blocks, 1, "the uncalled function itself is left untouched")
}
