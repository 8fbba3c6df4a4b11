package mirtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
)

// buildSample constructs a small module exercising a cross section of
// instruction kinds: a scalar global, loop-carried PHIs, an integer
// compare driving the back edge, and a call to a runtime function.
func buildSample() *mir.Module {
	m := mir.NewModule()
	m.AddGlobal(mir.NewGlobalVariable("g", mir.I32, false, mir.ZeroInitializer(mir.I32)))

	putint := mir.NewFunction("putint", mir.VoidType, true)
	putint.AddParam("v", mir.I32)
	m.AddFunction(putint)

	f := mir.NewFunction("sum", mir.I32, false)
	n := f.AddParam("n", mir.I32)
	entry := mir.NewBlock("entry")
	loop := mir.NewBlock("loop")
	exit := mir.NewBlock("exit")
	f.AddBlock(entry)
	f.AddBlock(loop)
	f.AddBlock(exit)
	m.AddFunction(f)

	mir.NewJump(loop, entry)

	i := mir.NewPhi("i", mir.I32, loop)
	acc := mir.NewPhi("acc", mir.I32, loop)
	i.AddIncoming(entry, mir.ConstInt(0))
	acc.AddIncoming(entry, mir.ConstInt(0))
	nextI := mir.NewIntBinary("next_i", "ADD", i, mir.ConstInt(1), loop)
	nextAcc := mir.NewIntBinary("next_acc", "ADD", acc, i, loop)
	i.AddIncoming(loop, nextI)
	acc.AddIncoming(loop, nextAcc)
	cmp := mir.NewICmp("done", "LT", nextI, n, loop)
	mir.NewBranch(cmp, loop, exit, loop)

	mir.NewCall("", putint, []mir.Value{acc}, exit)
	mir.NewRet(acc, exit)

	return m
}

func TestPrintParseRoundTrip(t *testing.T) {
	mir.ResetIDs()
	m := buildSample()
	text := Print(m)
	require.NotEmpty(t, text)

	parsed, err := Parse("sample.mir", text)
	require.NoError(t, err)

	again := Print(parsed)
	assert.Equal(t, text, again, "emit(parse(emit(M))) must equal emit(M)")
}

func TestPrintParseGlobalArray(t *testing.T) {
	mir.ResetIDs()
	m := mir.NewModule()
	arr := mir.Array(3, mir.I32)
	init := &mir.Initializer{Array: []*mir.Initializer{
		{Scalar: mir.ConstInt(1)},
		{Scalar: mir.ConstInt(2)},
		{Scalar: mir.ConstInt(0)},
	}}
	m.AddGlobal(mir.NewGlobalVariable("arr", arr, true, init))

	f := mir.NewFunction("touch", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)
	m.AddFunction(f)
	g, _ := m.LookupGlobal("arr")
	gep := mir.NewGep("p", g, []mir.Value{mir.ConstInt(1)}, mir.Pointer(mir.I32), entry)
	load := mir.NewLoad("v", gep, entry)
	mir.NewRet(load, entry)

	text := Print(m)
	parsed, err := Parse("arr.mir", text)
	require.NoError(t, err)
	assert.Equal(t, text, Print(parsed))
}

func TestParseRejectsUnknownBlock(t *testing.T) {
	mir.ResetIDs()
	src := `func @f() -> i32 {
entry:
  br true, missing, missing;
}
`
	_, err := Parse("bad.mir", src)
	assert.Error(t, err)
}
