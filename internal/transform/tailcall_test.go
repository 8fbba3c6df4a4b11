package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildTailRecursiveFunc builds a function whose only live content
// after its self-call is the call's own RET:
//
//	entry: %n = param; branch (n == 0), base, rec
//	base:  ret 0
//	rec:   %r = call f(n-1); ret %r
func buildTailRecursiveFunc() (*mir.Module, *mir.Function) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	base := mir.NewBlock("base")
	rec := mir.NewBlock("rec")
	f.AddBlock(entry)
	f.AddBlock(base)
	f.AddBlock(rec)

	n := f.AddParam("n", mir.I32)
	cmp := mir.NewICmp("is_zero", "EQ", n, mir.ConstInt(0), entry)
	mir.NewBranch(cmp, base, rec, entry)

	mir.NewRet(mir.ConstInt(0), base)

	dec := mir.NewIntBinary("dec", "SUB", n, mir.ConstInt(1), rec)
	call := mir.NewCall("r", f, []mir.Value{dec}, rec)
	mir.NewRet(call, rec)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f
}

func TestTailCallOptimizeMarksSafeSelfCall(t *testing.T) {
	m, f := buildTailRecursiveFunc()
	mgr := pass.NewManager(m, pass.O1)

	changed := TailCallOptimize{}.Run(m, mgr)
	assert.True(t, changed)

	var call *mir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpCall {
				call = inst
			}
		}
	}
	assert.True(t, call.Tail, "a call whose only remaining caller work is returning its own result is a safe tail call")
}

func TestTailCallOptimizeRejectsCallWithLiveStackAfter(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)

	n := f.AddParam("n", mir.I32)
	x := mir.NewAlloc("x", mir.I32, entry)
	mir.NewStore(x, n, entry)
	call := mir.NewCall("r", f, []mir.Value{n}, entry)
	// the stack slot is read again after the call: not a safe tail call.
	load := mir.NewLoad("reload", x, entry)
	sum := mir.NewIntBinary("sum", "ADD", call, load, entry)
	mir.NewRet(sum, entry)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	TailCallOptimize{}.Run(m, mgr)
	assert.False(t, call.Tail, "a call whose caller still touches its own stack afterward must not be marked tail")
}
