package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/diag"
)

func TestTypeInterning(t *testing.T) {
	a1 := Array(4, I32)
	a2 := Array(4, I32)
	assert.True(t, a1 == a2, "arrays of equal shape must be the same pointer")

	p1 := Pointer(I32)
	p2 := Pointer(I32)
	assert.True(t, p1 == p2, "pointers to the same pointee must be the same pointer")

	assert.True(t, Array(4, I32) != Array(3, I32))
	assert.Equal(t, 4, Array(4, I32).FlattenedSize())
	assert.Equal(t, I32, Array(4, Array(2, I32)).AtomicType())
}

func TestConstInterning(t *testing.T) {
	a := ConstInt(7)
	b := ConstInt(7)
	assert.True(t, a == b)
	assert.False(t, ConstInt(7) == ConstInt(8))
}

func TestSafeCalOverflow(t *testing.T) {
	_, ok := SafeCal("ADD", IntEval(2147483647), IntEval(1))
	assert.False(t, ok, "INT32_MAX+1 must be flagged as overflow, not wrapped")

	v, ok := SafeCal("ADD", IntEval(2), IntEval(3))
	require.True(t, ok)
	assert.Equal(t, int32(5), v.AsInt())

	_, ok = SafeCal("DIV", IntEval(1), IntEval(0))
	assert.False(t, ok, "division by zero must not be folded")
}

func TestReplaceAllUsesWith(t *testing.T) {
	fn := NewFunction("f", I32, false)
	entry := NewBlock("entry")
	fn.AddBlock(entry)

	a := NewAlloc("a", I32, entry)
	load1 := NewLoad("v1", a, entry)
	add := NewIntBinary("sum", "ADD", load1, load1, entry)
	NewRet(add, entry)

	load2 := NewLoad("v2", a, entry)
	ReplaceAllUsesWith(load1, load2)

	assert.Equal(t, 0, UseCount(load1))
	assert.Equal(t, 2, UseCount(load2))
	assert.Equal(t, load2, add.Operand(0))
	assert.Equal(t, load2, add.Operand(1))
}

func TestPhiIncomingEdges(t *testing.T) {
	fn := NewFunction("f", I32, false)
	entry := NewBlock("entry")
	left := NewBlock("left")
	right := NewBlock("right")
	join := NewBlock("join")
	fn.AddBlock(entry)
	fn.AddBlock(left)
	fn.AddBlock(right)
	fn.AddBlock(join)

	cond := fn.AddParam("cond", I1)
	NewBranch(cond, left, right, entry)
	NewJump(join, left)
	NewJump(join, right)

	phi := NewPhi("x", I32, join)
	phi.AddIncoming(left, ConstInt(1))
	phi.AddIncoming(right, ConstInt(2))
	NewRet(phi, join)

	assert.ElementsMatch(t, []*Block{left, right}, phi.IncomingBlocks())
	assert.Equal(t, Value(ConstInt(1)), phi.IncomingFrom(left))

	phi.RemoveIncoming(left)
	assert.Len(t, phi.IncomingBlocks(), 1)
	assert.Equal(t, right, phi.IncomingBlocks()[0])

	VerifyFunction(fn)
}

func TestVerifyFunctionCatchesMissingTerminator(t *testing.T) {
	fn := NewFunction("f", I32, false)
	entry := NewBlock("entry")
	fn.AddBlock(entry)
	NewAlloc("a", I32, entry)

	defer func() {
		r := recover()
		require.NotNil(t, r, "a block without a terminator must be rejected")
		msg, ok := diag.Recover(r)
		assert.True(t, ok)
		assert.Contains(t, msg, "I-TERM")
	}()
	VerifyFunction(fn)
}

func TestPredecessors(t *testing.T) {
	fn := NewFunction("f", I32, false)
	entry := NewBlock("entry")
	left := NewBlock("left")
	right := NewBlock("right")
	join := NewBlock("join")
	fn.AddBlock(entry)
	fn.AddBlock(left)
	fn.AddBlock(right)
	fn.AddBlock(join)

	cond := fn.AddParam("cond", I1)
	NewBranch(cond, left, right, entry)
	NewJump(join, left)
	NewJump(join, right)
	NewRet(nil, join)

	preds := Predecessors(fn, join)
	assert.ElementsMatch(t, []*Block{left, right}, preds)
}

func TestModuleLookups(t *testing.T) {
	m := NewModule()
	f := NewFunction("main", I32, false)
	m.AddFunction(f)
	g := NewGlobalVariable("g", I32, false, ZeroInitializer(I32))
	m.AddGlobal(g)

	assert.Equal(t, f, m.Main)
	got, ok := m.LookupFunction("main")
	assert.True(t, ok)
	assert.Equal(t, f, got)

	idx1 := m.AddConstString("%d\n")
	idx2 := m.AddConstString("%d\n")
	assert.Equal(t, idx1, idx2, "identical format strings must be interned")

	m.DeleteGlobal(g)
	_, ok = m.LookupGlobal("g")
	assert.False(t, ok)
}
